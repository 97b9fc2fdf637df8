//go:build !linux && !darwin && !freebsd && !windows

package diskspace

func freeBytes(string) (uint64, error) {
	return 0, ErrUnknown
}

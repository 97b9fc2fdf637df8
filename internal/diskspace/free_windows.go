//go:build windows

package diskspace

import "golang.org/x/sys/windows"

// freeBytes honors per-user quotas.
func freeBytes(dir string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, err
	}
	var available, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &available, &total, &totalFree); err != nil {
		return 0, err
	}
	return available, nil
}

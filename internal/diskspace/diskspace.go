// Package diskspace checks free space on the filesystem holding a local
// destination before retrieved instances are written to it.
package diskspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/rescale/rescale-qr/internal/constants"
)

// ErrUnknown is returned by Free when the platform cannot report free space.
var ErrUnknown = errors.New("free space unknown on this platform")

// InsufficientSpaceError reports a write that would run the destination
// filesystem out of space.
type InsufficientSpaceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space for %s: need %s, have %s available",
		e.Path, humanize.IBytes(e.Required), humanize.IBytes(e.Available))
}

// Free returns the bytes an unprivileged writer can still use on the
// filesystem that holds path. path need not exist; its nearest existing
// ancestor is inspected.
func Free(path string) (uint64, error) {
	return freeBytes(existingAncestor(filepath.Dir(path)))
}

// Ensure checks that an instance of size bytes (-1 if unknown) fits at
// path. At least constants.MinFreeSpaceBytes is required regardless of
// size, and constants.DiskSpaceSafetyMargin is applied on top. When free
// space cannot be determined the write is allowed.
func Ensure(path string, size int64) error {
	return ensure(path, size, constants.MinFreeSpaceBytes, constants.DiskSpaceSafetyMargin)
}

func ensure(path string, size, floor int64, margin float64) error {
	available, err := Free(path)
	if err != nil {
		return nil
	}
	if size < floor {
		size = floor
	}
	required := uint64(float64(size) * margin)
	if available < required {
		return &InsufficientSpaceError{Path: path, Required: required, Available: available}
	}
	return nil
}

// existingAncestor walks up from dir until it finds a path that exists.
func existingAncestor(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

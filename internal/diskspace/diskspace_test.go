package diskspace

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsure_SmallInstance(t *testing.T) {
	target := filepath.Join(t.TempDir(), "STORE", "1.2.3", "0001.dcm")
	if err := ensure(target, 1024, 0, 1.1); err != nil {
		t.Errorf("ensure() error = %v", err)
	}
}

func TestEnsure_Insufficient(t *testing.T) {
	target := filepath.Join(t.TempDir(), "STORE", "1.2.3", "0001.dcm")
	available, err := Free(target)
	if err != nil {
		t.Skipf("free space unknown: %v", err)
	}
	if available > math.MaxInt64/4 {
		t.Skip("filesystem too large to exceed")
	}

	// Fits exactly, but not once the margin is applied
	err = ensure(target, int64(available), 0, 2.0)
	var spaceErr *InsufficientSpaceError
	if !errors.As(fmt.Errorf("store: %w", err), &spaceErr) {
		t.Fatalf("ensure() error = %v, want InsufficientSpaceError", err)
	}
	if spaceErr.Available != available || spaceErr.Path != target {
		t.Errorf("error = %+v", spaceErr)
	}
}

func TestEnsure_FloorApplies(t *testing.T) {
	target := filepath.Join(t.TempDir(), "0001.dcm")
	available, err := Free(target)
	if err != nil {
		t.Skipf("free space unknown: %v", err)
	}
	if available > math.MaxInt64/4 {
		t.Skip("filesystem too large to exceed")
	}

	// Unknown size (-1) still needs the floor
	if err := ensure(target, -1, int64(available)+1, 1.0); err == nil {
		t.Error("ensure() should fail when the floor exceeds free space")
	}
}

func TestFree_NonExistentParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "file.dcm")
	available, err := Free(path)
	if err != nil {
		t.Skipf("free space unknown: %v", err)
	}
	if available == 0 {
		t.Error("expected non-zero free space via existing ancestor")
	}
}

func TestInsufficientSpaceErrorMessage(t *testing.T) {
	err := &InsufficientSpaceError{
		Path:      "/data/STORE/1.2.3/0001.dcm",
		Required:  100 * 1024 * 1024,
		Available: 50 * 1024 * 1024,
	}

	msg := err.Error()
	for _, want := range []string{"/data/STORE/1.2.3/0001.dcm", "100 MiB", "50 MiB"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message %q should contain %q", msg, want)
		}
	}
}

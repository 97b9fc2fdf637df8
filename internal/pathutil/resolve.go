// Package pathutil resolves user-supplied directories such as the -o output
// directory.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath expands a leading ~ and returns an absolute path.
// Symlinks (and Windows junctions) are resolved in the part of the path that
// exists; components that do not exist yet are appended unchanged, so a
// destination can be named before it is created.
func ResolveAbsolutePath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	// Walk up to the deepest existing ancestor
	current := absPath
	var missing []string
	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current
			}
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absPath, nil
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

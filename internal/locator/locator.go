// Package locator finds executables inside an installed package tree.
package locator

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// ErrNotFound is returned when no file with the requested name exists under the tree.
var ErrNotFound = errors.New("binary not found")

var errStop = errors.New("stop walk")

// Find walks dir depth-first in lexical order and returns the path of the
// first regular file (or symlink) whose base name equals binary.
func Find(dir, binary string) (string, error) {
	if binary == "" {
		return "", fmt.Errorf("locate in %s: empty binary name", dir)
	}
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// unreadable subtree; keep searching elsewhere
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Name() != binary {
			return nil
		}
		found = path
		return errStop
	})
	if found != "" {
		return found, nil
	}
	if err != nil && !errors.Is(err, errStop) {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s in %s: %w", binary, dir, ErrNotFound)
		}
		return "", fmt.Errorf("locate %s in %s: %w", binary, dir, err)
	}
	return "", fmt.Errorf("%s in %s: %w", binary, dir, ErrNotFound)
}

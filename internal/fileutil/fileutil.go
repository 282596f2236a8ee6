// Package fileutil provides file and path utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for file utility operations.
var (
	ErrEmptyFilename = errors.New("filename cannot be empty")
)

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// SanitizeFilename reduces a client-supplied filename to a safe base
// name: path components are stripped, separators and null bytes are
// replaced, and leading dots are dropped so uploads cannot hide as
// dotfiles or escape the upload directory.
func SanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	replacer := strings.NewReplacer("/", "_", "\\", "_", "\x00", "")
	base = replacer.Replace(base)
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		return "", ErrEmptyFilename
	}
	return base, nil
}

// ContainedIn resolves name inside dir and verifies the result does not
// escape it. Returns the joined path.
func ContainedIn(dir, name string) (string, error) {
	joined := filepath.Join(dir, filepath.Clean("/"+name))
	rel, err := filepath.Rel(dir, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes directory %q", name, dir)
	}
	return joined, nil
}

package util

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory containing path if it doesn't exist
func EnsureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

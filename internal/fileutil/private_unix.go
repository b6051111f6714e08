//go:build !windows

package fileutil

import "os"

// WritePrivate writes data to path with mode 0600.
func WritePrivate(path string, data []byte) error {
	return os.WriteFile(path, data, FileMode)
}

// MkdirPrivate creates path and any missing parents with mode 0700.
func MkdirPrivate(path string) error {
	return os.MkdirAll(path, DirMode)
}

// AppendPrivate opens path for appending, creating it with mode 0600.
func AppendPrivate(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FileMode)
}

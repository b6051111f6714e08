// Package fileutil writes files that only the current user may read.
// Exports carry session cookies and the local store holds every owner's
// accounts, so everything acctdash puts on disk goes through here.
// On Unix the mode bits are the whole story; on Windows a protected DACL
// naming the current user is applied as well.
package fileutil

import "os"

const (
	FileMode os.FileMode = 0o600
	DirMode  os.FileMode = 0o700
)

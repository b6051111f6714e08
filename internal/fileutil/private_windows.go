//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// restrict replaces the DACL on path with a single ACE granting the current
// user full control. Directories pass the ACE down to their children.
func restrict(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("current user sid: %w", err)
	}

	var inherit uint32 = windows.NO_INHERITANCE
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("build acl for %s: %w", path, err)
	}

	info := windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION)
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, info, nil, nil, acl, nil); err != nil {
		return fmt.Errorf("set dacl on %s: %w", path, err)
	}
	return nil
}

// restrictOrWarn applies restrict and logs failures. The mode bits were
// already set, so a failed DACL does not fail the write.
func restrictOrWarn(path string) {
	if err := restrict(path); err != nil {
		slog.Warn("could not restrict file to current user", "path", path, "error", err)
	}
}

func WritePrivate(path string, data []byte) error {
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return err
	}
	restrictOrWarn(path)
	return nil
}

// MkdirPrivate creates path and any missing parents. Every directory it
// creates gets the restricted DACL; existing parents are left alone.
func MkdirPrivate(path string) error {
	var created []string
	for p := filepath.Clean(path); ; {
		if _, err := os.Stat(p); err == nil {
			break
		}
		created = append(created, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	if err := os.MkdirAll(path, DirMode); err != nil {
		return err
	}
	for _, dir := range created {
		restrictOrWarn(dir)
	}
	return nil
}

func AppendPrivate(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FileMode)
	if err != nil {
		return nil, err
	}
	restrictOrWarn(path)
	return f, nil
}

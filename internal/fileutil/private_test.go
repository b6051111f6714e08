package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// assertPerm fails if path grants anything beyond want. A stricter umask is fine.
func assertPerm(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if extra := info.Mode().Perm() &^ want; extra != 0 {
		t.Errorf("%s perm = %04o, extra bits %04o", path, info.Mode().Perm(), extra)
	}
}

func TestWritePrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.csv")
	if err := WritePrivate(path, []byte("id,name\n")); err != nil {
		t.Fatalf("WritePrivate: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "id,name\n" {
		t.Errorf("content = %q", got)
	}
	assertPerm(t, path, FileMode)
}

func TestMkdirPrivate(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "exports")
	if err := MkdirPrivate(nested); err != nil {
		t.Fatalf("MkdirPrivate: %v", err)
	}
	for _, dir := range []string{filepath.Join(root, "a"), filepath.Join(root, "a", "b"), nested} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
		assertPerm(t, dir, DirMode)
	}

	// Existing directories are fine.
	if err := MkdirPrivate(nested); err != nil {
		t.Errorf("second MkdirPrivate: %v", err)
	}
}

func TestAppendPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tui.log")
	for _, line := range []string{"one\n", "two\n"} {
		f, err := AppendPrivate(path)
		if err != nil {
			t.Fatalf("AppendPrivate: %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("content = %q, want both lines", got)
	}
	assertPerm(t, path, FileMode)
}

// Package ptr provides pointer helpers for building patches in tests.
package ptr

// String returns a pointer to the given string value.
func String(v string) *string { return &v }

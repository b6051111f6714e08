package testutil

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertEqualSlices fails when got and want differ, printing a diff.
// A nil got equals an empty want.
func AssertEqualSlices[T comparable](t *testing.T, got []T, want ...T) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// AssertStrings is AssertEqualSlices for strings.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	AssertEqualSlices(t, got, want...)
}

// AssertContainsAll fails for every sub missing from got.
func AssertContainsAll(t *testing.T, got string, subs ...string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(got, sub) {
			t.Errorf("output does not contain %q:\n%s", sub, got)
		}
	}
}

// MustNoErr stops the test when a setup step fails.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

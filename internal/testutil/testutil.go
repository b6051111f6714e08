// Package testutil provides test helpers for acctdash tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertEqualSlices, etc.)
//   - store_helpers.go: database test setup (NewTestStore, SeedAccounts)
//   - builders.go: account builders and relative creation dates
package testutil

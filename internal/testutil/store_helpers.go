package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/store"
)

// NewTestStore creates a temporary migrated SQLite database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return st
}

// SeedAccounts inserts accounts and returns their assigned IDs.
func SeedAccounts(t *testing.T, st query.Backend, accounts ...query.Account) []int64 {
	t.Helper()
	ids, err := st.Insert(context.Background(), accounts)
	MustNoErr(t, err, "seed accounts")
	return ids
}

// Package query describes account reads and the backend that serves them.
package query

import "context"

// Backend is the record store behind the dashboard. Every operation is
// scoped to one owner email; implementations must never return or touch
// another owner's rows.
//
// Implementations: store.Store (SQLite/PostgreSQL) and remote.Store (HTTP).
type Backend interface {
	// Query returns the rows selected by q (windowed by q.Range when set)
	// and the exact number of rows matching q's predicate.
	Query(ctx context.Context, q Query) ([]Account, int64, error)

	// Get returns a single account or ErrNotFound.
	Get(ctx context.Context, owner string, id int64) (*Account, error)

	// Update applies a patch to a single account and returns the result.
	Update(ctx context.Context, owner string, id int64, p Patch) (*Account, error)

	// UpdateByIDs sets one field on every listed account in a single
	// atomic call and returns the IDs actually changed.
	UpdateByIDs(ctx context.Context, owner string, ids []int64, field Field, value string) ([]int64, error)

	// DeleteByIDs removes every listed account in a single atomic call and
	// returns the IDs actually removed.
	DeleteByIDs(ctx context.Context, owner string, ids []int64) ([]int64, error)

	// Distinct lists the owner's non-empty values of field, sorted, that
	// contain the given case-insensitive substring (all when empty).
	Distinct(ctx context.Context, owner string, field Field, contains string) ([]string, error)

	// Insert stores new accounts and returns their assigned IDs.
	Insert(ctx context.Context, accounts []Account) ([]int64, error)

	Close() error
}

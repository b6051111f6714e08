package query

import (
	"strings"

	"github.com/usernameweb/acctdash/internal/duration"
)

// Range is a half-open row window [Offset, Offset+Limit).
type Range struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Query is a backend-neutral description of one accounts read.
// Rows are always ordered by id descending.
type Query struct {
	OwnerEmail string `json:"owner_email"`
	Group      string `json:"group,omitempty"`
	Tag        string `json:"tag,omitempty"`
	// Search is a lower-cased substring matched against SearchColumns.
	Search string `json:"search,omitempty"`
	// Range is nil when every matching row must be returned.
	Range *Range `json:"range,omitempty"`
}

// Build translates grid state into a query for the given owner. When a
// duration bucket is active the range is omitted: the duration filter runs
// on the client, so the full matching set has to be fetched and sliced
// afterwards.
func Build(f FilterState, owner string) (Query, error) {
	q, err := BuildExport(f, owner)
	if err != nil {
		return Query{}, err
	}
	if f.Duration == duration.BucketNone {
		q.Range = &Range{Offset: f.Offset(), Limit: f.PageSize}
	}
	return q, nil
}

// BuildExport is Build without pagination.
func BuildExport(f FilterState, owner string) (Query, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return Query{}, ErrNoTenant
	}
	return Query{
		OwnerEmail: owner,
		Group:      f.Group,
		Tag:        f.Tag,
		Search:     NormalizeSearch(f.Search),
	}, nil
}

// Matches evaluates the query's predicate against a single account. It is
// the reference semantics for backends that filter in memory.
func (q Query) Matches(a Account) bool {
	if a.OwnerEmail != q.OwnerEmail {
		return false
	}
	if q.Group != "" && a.Group != q.Group {
		return false
	}
	if q.Tag != "" && a.Tag != q.Tag {
		return false
	}
	if q.Search == "" {
		return true
	}
	for _, v := range []string{a.Username, a.OwnerEmail, a.Group, a.Tag} {
		if strings.Contains(Fold(v), q.Search) {
			return true
		}
	}
	return false
}

// FilterByDuration keeps the rows whose creation date falls in bucket.
// BucketNone keeps everything.
func FilterByDuration(rows []Account, bucket duration.Bucket, c *duration.Classifier) []Account {
	if bucket == duration.BucketNone {
		return rows
	}
	out := make([]Account, 0, len(rows))
	for _, a := range rows {
		if c.Matches(a.CreatedAt, bucket) {
			out = append(out, a)
		}
	}
	return out
}

// Window applies the range to an already ordered slice.
func (q Query) Window(rows []Account) []Account {
	if q.Range == nil {
		return rows
	}
	return Slice(rows, q.Range.Offset, q.Range.Limit)
}

// Slice returns rows[offset:offset+limit], clamped to the slice bounds.
func Slice[T any](rows []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if limit < 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

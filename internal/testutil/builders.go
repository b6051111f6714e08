package testutil

import (
	"fmt"
	"time"

	"github.com/usernameweb/acctdash/internal/duration"
	"github.com/usernameweb/acctdash/internal/query"
)

// Owner is the default owner email used by builders.
const Owner = "owner@example.com"

// Now is the fixed instant test classifiers treat as the current time.
var Now = time.Date(2025, time.July, 17, 10, 0, 0, 0, time.UTC)

// Classifier returns an Indonesian-locale classifier pinned to Now in UTC.
func Classifier() *duration.Classifier {
	return duration.New(
		duration.WithLocation(time.UTC),
		duration.WithClock(func() time.Time { return Now }),
	)
}

// DaysAgo renders the stored creation date for n days before Now.
func DaysAgo(n int) string {
	return duration.Indonesian.FormatLong(Now.AddDate(0, 0, -n))
}

// AccountBuilder provides a fluent API for constructing query.Account in tests.
type AccountBuilder struct {
	a query.Account
}

// NewAccount creates a builder with sensible defaults. An id of 0 leaves the
// ID to the store.
func NewAccount(id int64) *AccountBuilder {
	return &AccountBuilder{
		a: query.Account{
			ID:         id,
			Username:   fmt.Sprintf("user%03d", id),
			UserAgent:  "Mozilla/5.0 (Linux; Android 13)",
			OwnerEmail: Owner,
			CreatedAt:  DaysAgo(0),
		},
	}
}

func (b *AccountBuilder) WithUsername(s string) *AccountBuilder {
	b.a.Username = s
	return b
}

func (b *AccountBuilder) WithOwner(s string) *AccountBuilder {
	b.a.OwnerEmail = s
	return b
}

func (b *AccountBuilder) WithGroup(s string) *AccountBuilder {
	b.a.Group = s
	return b
}

func (b *AccountBuilder) WithTag(s string) *AccountBuilder {
	b.a.Tag = s
	return b
}

func (b *AccountBuilder) WithUserAgent(s string) *AccountBuilder {
	b.a.UserAgent = s
	return b
}

func (b *AccountBuilder) WithCookies(s string) *AccountBuilder {
	b.a.Cookies = s
	return b
}

func (b *AccountBuilder) WithNote(s string) *AccountBuilder {
	b.a.Note = s
	return b
}

// CreatedDaysAgo sets the creation date n days before Now.
func (b *AccountBuilder) CreatedDaysAgo(n int) *AccountBuilder {
	b.a.CreatedAt = DaysAgo(n)
	return b
}

// CreatedAt sets the raw creation date text.
func (b *AccountBuilder) CreatedAt(s string) *AccountBuilder {
	b.a.CreatedAt = s
	return b
}

// Build returns the constructed account.
func (b *AccountBuilder) Build() query.Account {
	return b.a
}

// Accounts builds n accounts with IDs 1..n for Owner. The optional edit
// function customizes each account.
func Accounts(n int, edit func(i int, b *AccountBuilder)) []query.Account {
	out := make([]query.Account, n)
	for i := 0; i < n; i++ {
		b := NewAccount(int64(i + 1))
		if edit != nil {
			edit(i, b)
		}
		out[i] = b.Build()
	}
	return out
}

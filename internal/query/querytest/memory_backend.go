// Package querytest provides an in-memory query.Backend for tests.
package querytest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/usernameweb/acctdash/internal/query"
)

// Call records one backend invocation.
type Call struct {
	Method string
	Query  query.Query
	IDs    []int64
	Field  query.Field
	Value  string
}

// MemoryBackend implements query.Backend over a slice. Each method can be
// overridden with an error through the Err fields; calls are recorded.
type MemoryBackend struct {
	mu       sync.Mutex
	accounts []query.Account
	nextID   int64
	calls    []Call

	QueryErr  error
	UpdateErr error
	DeleteErr error
	InsertErr error

	// SkipIDs are silently left untouched by bulk mutations, simulating
	// rows that vanished between selection and execution.
	SkipIDs map[int64]bool
}

var _ query.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns a backend seeded with accounts. Accounts without
// an ID are assigned one.
func NewMemoryBackend(accounts ...query.Account) *MemoryBackend {
	m := &MemoryBackend{nextID: 1}
	for _, a := range accounts {
		if a.ID >= m.nextID {
			m.nextID = a.ID + 1
		}
	}
	for _, a := range accounts {
		if a.ID == 0 {
			a.ID = m.nextID
			m.nextID++
		}
		m.accounts = append(m.accounts, a)
	}
	return m
}

// Calls returns the recorded calls.
func (m *MemoryBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *MemoryBackend) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// All returns a copy of every stored account, ordered by id descending.
func (m *MemoryBackend) All() []query.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted()
}

func (m *MemoryBackend) sorted() []query.Account {
	out := append([]query.Account(nil), m.accounts...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *MemoryBackend) record(c Call) {
	m.calls = append(m.calls, c)
}

func (m *MemoryBackend) Query(_ context.Context, q query.Query) ([]query.Account, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "Query", Query: q})
	if m.QueryErr != nil {
		return nil, 0, m.QueryErr
	}
	var matched []query.Account
	for _, a := range m.sorted() {
		if q.Matches(a) {
			matched = append(matched, a)
		}
	}
	return q.Window(matched), int64(len(matched)), nil
}

func (m *MemoryBackend) Get(_ context.Context, owner string, id int64) (*query.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "Get", IDs: []int64{id}})
	for _, a := range m.accounts {
		if a.ID == id && a.OwnerEmail == owner {
			out := a
			return &out, nil
		}
	}
	return nil, query.ErrNotFound
}

func (m *MemoryBackend) Update(_ context.Context, owner string, id int64, p query.Patch) (*query.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "Update", IDs: []int64{id}})
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	for i, a := range m.accounts {
		if a.ID == id && a.OwnerEmail == owner {
			m.accounts[i] = p.Apply(a)
			out := m.accounts[i]
			return &out, nil
		}
	}
	return nil, query.ErrNotFound
}

func (m *MemoryBackend) UpdateByIDs(_ context.Context, owner string, ids []int64, field query.Field, value string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "UpdateByIDs", IDs: append([]int64(nil), ids...), Field: field, Value: value})
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var affected []int64
	for i, a := range m.accounts {
		if !want[a.ID] || a.OwnerEmail != owner || m.SkipIDs[a.ID] {
			continue
		}
		if field == query.FieldTag {
			m.accounts[i].Tag = value
		} else {
			m.accounts[i].Group = value
		}
		affected = append(affected, a.ID)
	}
	return affected, nil
}

func (m *MemoryBackend) DeleteByIDs(_ context.Context, owner string, ids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "DeleteByIDs", IDs: append([]int64(nil), ids...)})
	if m.DeleteErr != nil {
		return nil, m.DeleteErr
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var affected []int64
	kept := m.accounts[:0]
	for _, a := range m.accounts {
		if want[a.ID] && a.OwnerEmail == owner && !m.SkipIDs[a.ID] {
			affected = append(affected, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	m.accounts = kept
	return affected, nil
}

func (m *MemoryBackend) Distinct(_ context.Context, owner string, field query.Field, contains string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "Distinct", Field: field, Value: contains})
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	term := query.NormalizeSearch(contains)
	seen := make(map[string]bool)
	var out []string
	for _, a := range m.accounts {
		v := field.Value(a)
		if a.OwnerEmail != owner || v == "" || seen[v] {
			continue
		}
		if term != "" && !strings.Contains(query.Fold(v), term) {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) Insert(_ context.Context, accounts []query.Account) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Method: "Insert"})
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	ids := make([]int64, len(accounts))
	for i, a := range accounts {
		a.ID = m.nextID
		m.nextID++
		m.accounts = append(m.accounts, a)
		ids[i] = a.ID
	}
	return ids, nil
}

func (m *MemoryBackend) Close() error { return nil }

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/usernameweb/acctdash/internal/query"
)

var _ query.Backend = (*Store)(nil)

const accountColumns = "id, username, user_agent, owner_email, group_name, tag_name, created_at, cookies, note"

func scanAccount(sc interface{ Scan(...any) error }) (query.Account, error) {
	var a query.Account
	err := sc.Scan(&a.ID, &a.Username, &a.UserAgent, &a.OwnerEmail,
		&a.Group, &a.Tag, &a.CreatedAt, &a.Cookies, &a.Note)
	return a, err
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// whereClause builds the shared predicate for q. lower names the SQL
// function used to fold searched columns.
func whereClause(q query.Query, lower string) (string, []interface{}) {
	conds := []string{"owner_email = ?"}
	args := []interface{}{q.OwnerEmail}
	if q.Group != "" {
		conds = append(conds, "group_name = ?")
		args = append(args, q.Group)
	}
	if q.Tag != "" {
		conds = append(conds, "tag_name = ?")
		args = append(args, q.Tag)
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		ors := make([]string, len(query.SearchColumns))
		for i, col := range query.SearchColumns {
			ors[i] = fmt.Sprintf(`%s(%s) LIKE ? ESCAPE '\'`, lower, col)
			args = append(args, pattern)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns one page of matching accounts, ordered by id descending,
// together with the exact count of all matches.
func (s *Store) Query(ctx context.Context, q query.Query) ([]query.Account, int64, error) {
	where, args := whereClause(q, s.lowerFunc())

	var total int64
	if err := s.db.QueryRowContext(ctx, s.Rebind("SELECT COUNT(*) FROM accounts"+where), args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "count accounts")
	}

	sel := "SELECT " + accountColumns + " FROM accounts" + where + " ORDER BY id DESC"
	selArgs := args
	if q.Range != nil {
		sel += " LIMIT ? OFFSET ?"
		selArgs = append(append([]interface{}{}, args...), q.Range.Limit, q.Range.Offset)
	}

	rows, err := s.db.QueryContext(ctx, s.Rebind(sel), selArgs...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "query accounts")
	}
	defer rows.Close()

	var out []query.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "scan account")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "iterate accounts")
	}
	return out, total, nil
}

// Get returns one account owned by owner.
func (s *Store) Get(ctx context.Context, owner string, id int64) (*query.Account, error) {
	row := s.db.QueryRowContext(ctx,
		s.Rebind("SELECT "+accountColumns+" FROM accounts WHERE owner_email = ? AND id = ?"), owner, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, query.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "get account %d", id)
	}
	return &a, nil
}

// Update applies a patch to one account and returns the updated row.
func (s *Store) Update(ctx context.Context, owner string, id int64, p query.Patch) (*query.Account, error) {
	cols, vals := p.Assignments()
	if len(cols) == 0 {
		return s.Get(ctx, owner, id)
	}

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(vals)+2)
	for i, c := range cols {
		sets[i] = string(c) + " = ?"
		args = append(args, vals[i])
	}
	args = append(args, owner, id)

	q := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE owner_email = ? AND id = ?"
	res, err := s.db.ExecContext(ctx, s.Rebind(q), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "update account %d", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, query.ErrNotFound
	}
	return s.Get(ctx, owner, id)
}

// UpdateByIDs sets field to value on the owner's accounts among ids in one
// transaction and returns the ids that were actually updated.
func (s *Store) UpdateByIDs(ctx context.Context, owner string, ids []int64, field query.Field, value string) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tmpl := "UPDATE accounts SET " + string(field.Column()) + " = ? WHERE owner_email = ? AND id IN (%s) RETURNING id"

	var affected []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		affected, err = s.execInChunks(ctx, tx, ids, []interface{}{value, owner}, tmpl)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "bulk update %s", field)
	}
	return affected, nil
}

// DeleteByIDs removes the owner's accounts among ids in one transaction and
// returns the ids that were actually deleted.
func (s *Store) DeleteByIDs(ctx context.Context, owner string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	tmpl := "DELETE FROM accounts WHERE owner_email = ? AND id IN (%s) RETURNING id"

	var affected []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		affected, err = s.execInChunks(ctx, tx, ids, []interface{}{owner}, tmpl)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "bulk delete")
	}
	return affected, nil
}

// Distinct lists the owner's non-empty values of field, sorted, optionally
// restricted to values containing the case-insensitive term.
func (s *Store) Distinct(ctx context.Context, owner string, field query.Field, contains string) ([]string, error) {
	col := string(field.Column())
	q := "SELECT DISTINCT " + col + " FROM accounts WHERE owner_email = ? AND " + col + " <> ''"
	args := []interface{}{owner}
	if term := query.NormalizeSearch(contains); term != "" {
		q += " AND " + s.lowerFunc() + "(" + col + `) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(term)+"%")
	}
	q += " ORDER BY " + col

	rows, err := s.db.QueryContext(ctx, s.Rebind(q), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "distinct %s", field)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "scan %s", field)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "iterate %s", field)
	}
	return out, nil
}

// Insert stores new accounts and returns their assigned ids in input order.
// Any ID on the input is ignored.
func (s *Store) Insert(ctx context.Context, accounts []query.Account) ([]int64, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	q := s.Rebind(`INSERT INTO accounts (username, user_agent, owner_email, group_name, tag_name, created_at, cookies, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	ids := make([]int64, 0, len(accounts))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range accounts {
			var id int64
			if err := stmt.QueryRowContext(ctx, a.Username, a.UserAgent, a.OwnerEmail,
				a.Group, a.Tag, a.CreatedAt, a.Cookies, a.Note).Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "insert accounts")
	}
	return ids, nil
}

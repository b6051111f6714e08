// Package store provides SQL persistence for account records.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"

	"github.com/usernameweb/acctdash/internal/fileutil"
	"github.com/usernameweb/acctdash/internal/query"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect identifies the SQL flavor behind a Store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// Store provides account operations over SQLite or PostgreSQL.
type Store struct {
	db      *sql.DB
	dbPath  string
	dialect Dialect
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// sqliteDriver is go-sqlite3 with a Unicode-aware ulower() function.
// SQLite's built-in LOWER only folds ASCII.
const sqliteDriver = "sqlite3_acctdash"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", query.Fold, true)
		},
	})
}

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}

// IsPostgresURL reports whether dsn names a PostgreSQL database.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "postgres://")
}

// Open opens the database named by dsn: a postgres:// URL or a SQLite file
// path, which is created along with its directory when missing.
func Open(dsn string) (*Store, error) {
	if IsPostgresURL(dsn) {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return &Store{db: db, dialect: DialectPostgres}, nil
	}

	dir := filepath.Dir(dsn)
	if err := fileutil.MkdirPrivate(dir); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(sqliteDriver, dsn+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		db:      db,
		dbPath:  dsn,
		dialect: DialectSQLite,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL flavor of the store.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// lowerFunc names the SQL function that folds a column for search.
func (s *Store) lowerFunc() string {
	if s.dialect == DialectSQLite {
		return "ulower"
	}
	return "LOWER"
}

// Path returns the SQLite file path, or "" for PostgreSQL.
func (s *Store) Path() string {
	return s.dbPath
}

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+s.migrationDir())
	if err != nil {
		return eris.Wrap(err, "open migrations")
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(sub)
	goose.SetLogger(goose.NopLogger())
	dialect := "sqlite3"
	if s.dialect == DialectPostgres {
		dialect = "pgx"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return eris.Wrapf(err, "set migration dialect %s", dialect)
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return eris.Wrap(err, "run migrations")
	}
	return nil
}

func (s *Store) migrationDir() string {
	if s.dialect == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// withTx executes fn within a database transaction. If fn returns an error,
// the transaction is rolled back; otherwise it is committed.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// chunkSize bounds IN-list parameters per statement to stay under
// SQLite's 999 variable limit with room for prefix args.
const chunkSize = 500

// execInChunks runs a parameterized IN-statement with RETURNING id in chunks.
// queryTemplate must contain a single %s placeholder for the "?" list; the
// prefix args are prepended before each chunk's args. Returned ids are
// collected across chunks.
func (s *Store) execInChunks(ctx context.Context, tx *sql.Tx, ids []int64, prefixArgs []interface{}, queryTemplate string) ([]int64, error) {
	var affected []int64
	for i := 0; i < len(ids); i += chunkSize {
		end := i + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(prefixArgs)+len(chunk))
		args = append(args, prefixArgs...)
		for j, id := range chunk {
			placeholders[j] = "?"
			args = append(args, id)
		}

		q := s.Rebind(fmt.Sprintf(queryTemplate, strings.Join(placeholders, ",")))
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			affected = append(affected, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return affected, nil
}

// Rebind converts a query with ? placeholders to the format of the store's
// driver. PostgreSQL gets $1, $2, ...; quoted literals are left alone.
func (s *Store) Rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Stats holds database statistics.
type Stats struct {
	AccountCount int64
	OwnerCount   int64
	DatabaseSize int64
}

// GetStats returns statistics about the database.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM accounts", &stats.AccountCount},
		{"SELECT COUNT(DISTINCT owner_email) FROM accounts", &stats.OwnerCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			if isSQLiteError(err, "no such table") {
				continue
			}
			return nil, eris.Wrapf(err, "get stats %q", q.query)
		}
	}

	if s.dbPath != "" {
		if info, err := os.Stat(s.dbPath); err == nil {
			stats.DatabaseSize = info.Size()
		}
	}

	return stats, nil
}

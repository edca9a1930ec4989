// Package store persists the workbook cache, users and the audit log through
// database/sql. PostgreSQL is reached through pgx's stdlib driver and SQLite
// through modernc.org/sqlite; both share one SQL dialect ($N placeholders,
// ON CONFLICT upserts, RETURNING).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/sheetvault/internal/store/migrations"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Dialect identifies the database engine behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DBTX is the subset of database/sql used by the repositories. Both *sql.DB
// and *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PoolOptions tunes the connection pool. Zero values keep driver defaults.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DB is an open database handle.
type DB struct {
	*sql.DB
	dialect Dialect
}

// ParseURL resolves the driver dialect and DSN for a database URL.
// postgres:// and postgresql:// select pgx; sqlite://path, file: URIs and
// paths ending in .db select SQLite.
func ParseURL(url string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Postgres, url, nil
	case strings.HasPrefix(url, "sqlite://"):
		return SQLite, sqliteDSN(strings.TrimPrefix(url, "sqlite://")), nil
	case strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"), url == ":memory:":
		return SQLite, sqliteDSN(url), nil
	}
	return "", "", fmt.Errorf("unsupported database url scheme: %q", redact(url))
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func redact(url string) string {
	if i := strings.Index(url, "@"); i > 0 {
		if j := strings.Index(url, "://"); j > 0 && j < i {
			return url[:j+3] + "****" + url[i:]
		}
	}
	return url
}

// Open connects to the database named by url and verifies the connection.
func Open(ctx context.Context, url string, opts PoolOptions) (*DB, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == SQLite {
		driver = "sqlite"
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == SQLite {
		// One writer at a time; also keeps :memory: databases on one connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opts.MaxConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxConns)
		}
		if opts.MinConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MinConns)
		}
	}
	if opts.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxConnLifetime)
	}
	if opts.MaxConnIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.MaxConnIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// Dialect reports the engine behind db.
func (db *DB) Dialect() Dialect { return db.dialect }

// Migrate applies every pending migration for the database's dialect and
// returns the number applied.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	dir, gd := "postgres", goose.DialectPostgres
	if db.dialect == SQLite {
		dir, gd = "sqlite", goose.DialectSQLite3
	}
	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(gd, db.DB, fsys)
	if err != nil {
		return 0, fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("migrate: %w", err)
	}
	return len(results), nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Panics are rethrown.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

// Truncate drops sub-microsecond precision so instants compare equal after a
// round trip through either engine.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func wrap(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

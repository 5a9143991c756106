// Package driver selects and wraps the SQL backend the task store runs
// on. SQLite is the default backend; PostgreSQL is chosen by DSN. Both
// are driven through one connection type, with the dialect differences
// confined to a small spec.
package driver

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect names a supported database backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps the spellings accepted on the command line to a
// Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown dialect %q (want sqlite or postgres)", s)
}

// Driver is the connection surface the db package consumes.
type Driver interface {
	Open(dsn string) error
	Close() error

	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)

	// Migrate applies any schema files not yet recorded for this
	// database, in version order.
	Migrate(ctx context.Context, schema SchemaFS) error

	Dialect() Dialect
	// Placeholder renders the dialect's bind marker: ? for SQLite,
	// $1, $2, ... for PostgreSQL.
	Placeholder(index int) string
	// DB exposes the raw pool for callers that need it.
	DB() *sql.DB
}

// Tx is a transaction on an open Driver.
type Tx interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Commit() error
	Rollback() error
}

// SchemaFS is the slice of fs.FS that migrations need; the db package
// adapts its embed.FS to it.
type SchemaFS interface {
	ReadDir(name string) ([]DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// DirEntry mirrors fs.DirEntry without importing io/fs here.
type DirEntry interface {
	Name() string
	IsDir() bool
}

// New returns an unopened driver for the dialect.
func New(dialect Dialect) (Driver, error) {
	switch dialect {
	case DialectSQLite:
		return NewSQLite(), nil
	case DialectPostgres:
		return NewPostgres(), nil
	}
	return nil, fmt.Errorf("unsupported dialect %q", dialect)
}

// spec carries everything that differs between backends.
type spec struct {
	dialect     Dialect
	schemaDir   string
	open        func(dsn string) (*sql.DB, error)
	placeholder func(index int) string
}

// conn implements Driver over database/sql for any spec.
type conn struct {
	spec spec
	db   *sql.DB
}

func (c *conn) Open(dsn string) error {
	db, err := c.spec.open(dsn)
	if err != nil {
		return err
	}
	c.db = db
	return nil
}

func (c *conn) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return txWrap{tx}, nil
}

func (c *conn) Migrate(ctx context.Context, schema SchemaFS) error {
	return applyMigrations(ctx, c, schema, c.spec.schemaDir)
}

func (c *conn) Dialect() Dialect {
	return c.spec.dialect
}

func (c *conn) Placeholder(index int) string {
	return c.spec.placeholder(index)
}

func (c *conn) DB() *sql.DB {
	return c.db
}

// txWrap adapts sql.Tx to the Tx interface.
type txWrap struct {
	tx *sql.Tx
}

func (t txWrap) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t txWrap) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t txWrap) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t txWrap) Commit() error {
	return t.tx.Commit()
}

func (t txWrap) Rollback() error {
	return t.tx.Rollback()
}

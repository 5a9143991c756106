package driver

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go sqlite, no cgo
)

// NewSQLite returns an unopened SQLite driver.
func NewSQLite() Driver {
	return &conn{spec: spec{
		dialect:     DialectSQLite,
		schemaDir:   "schema",
		open:        openSQLite,
		placeholder: func(int) string { return "?" },
	}}
}

// sqlitePragmas are applied through the DSN so every pooled connection
// gets them, not just the one that ran a setup statement.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=busy_timeout(5000)",
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + strings.Join(sqlitePragmas, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// One connection: SQLite serialises writers anyway, and a pool of
	// one keeps :memory: databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

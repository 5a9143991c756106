package driver

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewPostgres returns an unopened PostgreSQL driver backed by pgx.
func NewPostgres() Driver {
	return &conn{spec: spec{
		dialect:     DialectPostgres,
		schemaDir:   "schema/postgres",
		open:        openPostgres,
		placeholder: func(index int) string { return fmt.Sprintf("$%d", index) },
	}}
}

func openPostgres(dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	// Simple protocol lets multi-statement migration files run in a
	// single Exec.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db := stdlib.OpenDB(*cfg)
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

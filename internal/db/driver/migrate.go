package driver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// migration pairs a schema file with the numeric version parsed from
// its NNN_description.sql name.
type migration struct {
	version int
	name    string
}

const migrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// applyMigrations brings the database up to the newest schema version.
// Versions at or below the recorded watermark are skipped; each new
// file runs inside its own transaction and is stamped on success.
func applyMigrations(ctx context.Context, c *conn, schema SchemaFS, dir string) error {
	pending, err := listMigrations(schema, dir)
	if err != nil {
		return err
	}

	if _, err := c.Exec(ctx, migrationsDDL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var watermark sql.NullInt64
	if err := c.QueryRow(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&watermark); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	for _, m := range pending {
		if watermark.Valid && int64(m.version) <= watermark.Int64 {
			continue
		}
		src, err := schema.ReadFile(dir + "/" + m.name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.name, err)
		}
		if err := inTx(ctx, c, func(tx Tx) error {
			if _, err := tx.Exec(ctx, string(src)); err != nil {
				return err
			}
			stamp := fmt.Sprintf(
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES (%s, %s, %s)",
				c.Placeholder(1), c.Placeholder(2), c.Placeholder(3))
			_, err := tx.Exec(ctx, stamp, m.version, m.name,
				time.Now().UTC().Format(time.RFC3339))
			return err
		}); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

// listMigrations returns the .sql files of dir sorted by version,
// rejecting unversioned names and duplicate versions.
func listMigrations(schema SchemaFS, dir string) ([]migration, error) {
	entries, err := schema.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		v, err := versionOf(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", v, prev, entry.Name())
		}
		seen[v] = entry.Name()
		out = append(out, migration{version: v, name: entry.Name()})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func versionOf(filename string) (int, error) {
	prefix, _, found := strings.Cut(filename, "_")
	if !found || prefix == "" {
		return 0, fmt.Errorf("migration %q has no NNN_ version prefix", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %q has no NNN_ version prefix", filename)
	}
	return v, nil
}

func inTx(ctx context.Context, c *conn, fn func(Tx) error) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

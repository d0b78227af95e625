package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const versionsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
)`

type migration struct {
	version string
	up      string
	down    string
}

// MigrateUp applies the up migrations not yet recorded in
// schema_migrations, oldest first, each in its own transaction.
func MigrateUp(db *sql.DB) error {
	migrations, applied, err := prepare(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		err := inTx(db, m.up, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
	}
	return nil
}

// MigrateDown reverts applied migrations newest first.
func MigrateDown(db *sql.DB) error {
	migrations, applied, err := prepare(db)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !applied[m.version] {
			continue
		}
		if err := inTx(db, m.down, `DELETE FROM schema_migrations WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("revert migration %s: %w", m.version, err)
		}
	}
	return nil
}

// AppliedVersions lists recorded migration versions in order.
func AppliedVersions(db *sql.DB) ([]string, error) {
	if _, err := db.Exec(versionsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func prepare(db *sql.DB) ([]migration, map[string]bool, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, err
	}
	versions, err := AppliedVersions(db)
	if err != nil {
		return nil, nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return migrations, applied, nil
}

func loadMigrations() ([]migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(names)
	out := make([]migration, 0, len(names))
	for _, name := range names {
		version := strings.TrimSuffix(path.Base(name), ".up.sql")
		up, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		down, err := migrationFiles.ReadFile("migrations/" + version + ".down.sql")
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", version, err)
		}
		out = append(out, migration{version: version, up: string(up), down: string(down)})
	}
	return out, nil
}

func inTx(db *sql.DB, script, record string, args ...any) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(record, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

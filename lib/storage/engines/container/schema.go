package container

import (
	"database/sql"
	"errors"
	"fmt"
)

const (
	containerMagic   = "kstore-container"
	containerVersion = "1"
)

// ensureSchema creates the catalog tables of a new container and checks the
// marker of an existing one. errNotContainer is returned for any SQLite file
// (or any file at all) that is not a kstore container.
func ensureSchema(db *sql.DB, product string) error {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&tables); err != nil {
		return fmt.Errorf("%w: %v", errNotContainer, err)
	}

	if tables > 0 {
		var magic, version string
		err := db.QueryRow(`SELECT
				(SELECT value FROM meta WHERE key = 'magic'),
				(SELECT value FROM meta WHERE key = 'version')`).Scan(&magic, &version)
		if err != nil {
			return fmt.Errorf("%w: %v", errNotContainer, err)
		}
		if magic != containerMagic {
			return fmt.Errorf("%w: magic %q", errNotContainer, magic)
		}
		if version != containerVersion {
			return fmt.Errorf("%w: unsupported version %s", errNotContainer, version)
		}
		return nil
	}

	stmts := []string{
		`CREATE TABLE meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`CREATE TABLE partitions (
            name TEXT PRIMARY KEY,
            arity INTEGER NOT NULL
        );`,
		`CREATE TABLE datasets (
            id INTEGER PRIMARY KEY,
            path TEXT NOT NULL UNIQUE,
            partition TEXT NOT NULL,
            idx INTEGER NOT NULL,
            name TEXT NOT NULL,
            codec TEXT NOT NULL,
            record_size INTEGER NOT NULL,
            count INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE chunks (
            dataset_id INTEGER NOT NULL,
            first INTEGER NOT NULL,
            count INTEGER NOT NULL,
            payload BLOB NOT NULL,
            PRIMARY KEY (dataset_id, first)
        );`,
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	meta := map[string]string{
		"magic":   containerMagic,
		"version": containerVersion,
		"product": product,
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO meta(key, value) VALUES (?, ?)`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var errNotContainer = errors.New("not a kstore container")

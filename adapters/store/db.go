// Package store persists conversation history in SQLite using the pure-Go
// modernc.org/sqlite driver.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDB opens (or creates) the database at path with WAL journaling and a
// busy timeout, then applies pending migrations. The parent directory must
// exist.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("store.OpenDB: parent directory %q does not exist", dir)
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.OpenDB: open %q: %w", path, err)
	}

	// WAL allows concurrent readers; SQLite serializes the writers.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store.OpenDB: ping %q: %w", path, err)
	}

	if err := MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Package sqlite implements domain.Store on an embedded SQLite database.
//
// Every Update is one SQL transaction: the ledger invocation commits all of
// its writes or none of them. Map-shaped fields (options, settings, worker
// accumulators) are stored as JSON text columns.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tutu-network/trail/internal/domain"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "trail.db"

// errReadOnly is returned by writes attempted inside View.
var errReadOnly = errors.New("sqlite: write in read-only transaction")

// DB wraps the ledger database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) dir/trail.db and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Printf("[sqlite] opened %s", path)
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) migrate() error {
	for _, stmt := range LedgerMigrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// View runs fn in a transaction that is always rolled back. Writes fail.
func (db *DB) View(ctx context.Context, fn func(domain.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(&ledgerTx{ctx: ctx, tx: tx, readOnly: true})
}

// Update runs fn in a transaction and commits it if fn returns nil.
func (db *DB) Update(ctx context.Context, fn func(domain.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&ledgerTx{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Package persist keeps pickles in a SQLite database keyed by persistent id,
// and resolves persistent references found while decoding against it.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown oid.
var ErrNotFound = errors.New("persist: oid not found")

const createPickles = `CREATE TABLE IF NOT EXISTS pickles (
    oid TEXT PRIMARY KEY,
    data BLOB NOT NULL
);`

// Store is a table of pickles keyed by oid.
type Store struct {
	db *sql.DB
}

// Open opens, creating if needed, the store database at path.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	// an in-memory database lives as long as its connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createPickles); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores data under oid, replacing what was there.
func (s *Store) Put(ctx context.Context, oid string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pickles (oid, data) VALUES (?, ?)
		 ON CONFLICT(oid) DO UPDATE SET data = excluded.data`,
		oid, data)
	if err != nil {
		return fmt.Errorf("persist: put %q: %w", oid, err)
	}
	return nil
}

// Get returns the pickle stored under oid.
func (s *Store) Get(ctx context.Context, oid string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM pickles WHERE oid = ?`, oid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, oid)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get %q: %w", oid, err)
	}
	return data, nil
}

// Delete removes oid. Deleting a missing oid is not an error.
func (s *Store) Delete(ctx context.Context, oid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pickles WHERE oid = ?`, oid); err != nil {
		return fmt.Errorf("persist: delete %q: %w", oid, err)
	}
	return nil
}

// List returns all oids in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT oid FROM pickles ORDER BY oid`)
	if err != nil {
		return nil, fmt.Errorf("persist: list: %w", err)
	}
	defer rows.Close()

	var oids []string
	for rows.Next() {
		var oid string
		if err := rows.Scan(&oid); err != nil {
			return nil, fmt.Errorf("persist: list: %w", err)
		}
		oids = append(oids, oid)
	}
	return oids, rows.Err()
}

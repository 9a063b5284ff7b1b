// Package catalog stores feed items in SQLite and serves them page by page.
//
// A feed is an ordered list of media items identified by a feed ID. The
// daemon reads the first page at startup and the pager backs the manager's
// pagination hook.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when an item does not exist in a feed.
	ErrNotFound = errors.New("catalog: item not found")

	// ErrEmptyURI is returned when adding an item without a URI.
	ErrEmptyURI = errors.New("catalog: item URI is empty")
)

// Item is one media entry of a feed.
type Item struct {
	ID       string
	Feed     string
	Position int
	URI      string
	Title    string
	AddedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    feed TEXT NOT NULL,
    position INTEGER NOT NULL,
    uri TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    added_at INTEGER NOT NULL          -- UnixNano
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_feed_position ON items(feed, position);
`

// Store is a SQLite-backed feed catalog. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog: database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("catalog: create directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add appends items to the end of feed and returns them with their assigned
// IDs and positions. Empty IDs are filled with a new UUID.
func (s *Store) Add(ctx context.Context, feed string, items []Item) ([]Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var next int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM items WHERE feed = ?`, feed)
	if err := row.Scan(&next); err != nil {
		return nil, fmt.Errorf("catalog: next position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items (id, feed, position, uri, title, added_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("catalog: prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.URI == "" {
			return nil, ErrEmptyURI
		}
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.Feed = feed
		it.Position = next
		it.AddedAt = now
		if _, err := stmt.ExecContext(ctx, it.ID, it.Feed, it.Position, it.URI, it.Title, it.AddedAt.UnixNano()); err != nil {
			return nil, fmt.Errorf("catalog: insert %s: %w", it.URI, err)
		}
		out = append(out, it)
		next++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return out, nil
}

// Page returns up to limit items of feed starting at offset, in feed order.
func (s *Store) Page(ctx context.Context, feed string, offset, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feed, position, uri, title, added_at FROM items WHERE feed = ? ORDER BY position LIMIT ? OFFSET ?`,
		feed, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog: query page: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var added int64
		if err := rows.Scan(&it.ID, &it.Feed, &it.Position, &it.URI, &it.Title, &added); err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		it.AddedAt = time.Unix(0, added)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate page: %w", err)
	}
	return items, nil
}

// Count returns the number of items in feed.
func (s *Store) Count(ctx context.Context, feed string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE feed = ?`, feed).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// Get returns the item with id in feed.
func (s *Store) Get(ctx context.Context, feed, id string) (Item, error) {
	var it Item
	var added int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, feed, position, uri, title, added_at FROM items WHERE feed = ? AND id = ?`, feed, id).
		Scan(&it.ID, &it.Feed, &it.Position, &it.URI, &it.Title, &added)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	it.AddedAt = time.Unix(0, added)
	return it, nil
}

// Package resume remembers, per feed, which item the viewer was watching so
// the daemon can reopen the feed at the same place.
package resume

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/diskv/v3"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNoPosition is returned by Load when nothing was saved for a feed.
var ErrNoPosition = errors.New("resume: no saved position")

// Position is the saved viewing position of a feed.
type Position struct {
	Feed    string    `msgpack:"feed"`
	ItemID  string    `msgpack:"item_id"`
	Index   int       `msgpack:"index"`
	SavedAt time.Time `msgpack:"saved_at"`
}

// Store persists positions on disk, one file per feed.
type Store struct {
	d *diskv.Diskv
}

// Open returns a store rooted at dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("resume: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("resume: create directory: %w", err)
	}
	return &Store{d: diskv.New(diskv.Options{
		BasePath:     dir,
		CacheSizeMax: 64 * 1024,
	})}, nil
}

// key maps a feed ID to a file-system safe key.
func key(feed string) string {
	sum := md5.Sum([]byte(feed))
	return "feed-" + hex.EncodeToString(sum[:])
}

// Save records pos for its feed, replacing any previous position.
func (s *Store) Save(pos Position) error {
	if pos.SavedAt.IsZero() {
		pos.SavedAt = time.Now()
	}
	data, err := msgpack.Marshal(&pos)
	if err != nil {
		return fmt.Errorf("resume: encode position: %w", err)
	}
	if err := s.d.Write(key(pos.Feed), data); err != nil {
		return fmt.Errorf("resume: write position: %w", err)
	}
	return nil
}

// Load returns the saved position of feed.
func (s *Store) Load(feed string) (Position, error) {
	k := key(feed)
	if !s.d.Has(k) {
		return Position{}, ErrNoPosition
	}
	data, err := s.d.Read(k)
	if err != nil {
		return Position{}, fmt.Errorf("resume: read position: %w", err)
	}
	var pos Position
	if err := msgpack.Unmarshal(data, &pos); err != nil {
		return Position{}, fmt.Errorf("resume: decode position: %w", err)
	}
	return pos, nil
}

// Forget deletes the saved position of feed.
func (s *Store) Forget(feed string) error {
	k := key(feed)
	if !s.d.Has(k) {
		return nil
	}
	if err := s.d.Erase(k); err != nil {
		return fmt.Errorf("resume: erase position: %w", err)
	}
	return nil
}

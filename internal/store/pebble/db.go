// Package pebble persists linked accounts and the audit log in an embedded
// Pebble key-value store, for single-node deployments without PostgreSQL.
package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// DB owns the Pebble handle shared by the stores in this package.
type DB struct {
	db *pebble.DB
}

// Open opens or creates a database at path.
func Open(path string) (*DB, error) {
	return open(path, &pebble.Options{
		Cache:        pebble.NewCache(16 << 20),
		MaxOpenFiles: 256,
	})
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory() (*DB, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()})
}

func open(path string, opts *pebble.Options) (*DB, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %q: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

package binding

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("records")

// BoltBackend implements KeyValueBackend and RangeScanner for bbolt. All
// records live in one bucket; table prefixes keep them apart.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens the bbolt file at cfg.Path, creating parent
// directories as needed.
func NewBoltBackend(cfg Config) (Backend, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(cfg.Path, 0644, nil)
	if err != nil {
		return nil, err
	}
	db.NoSync = cfg.Bolt.NoSync

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", cfg.Path).
		Bool("no_sync", cfg.Bolt.NoSync).
		Msg("Created bbolt backend")
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Name() string {
	return string(BackendBolt)
}

// Get implements KeyValueBackend.Get for bbolt
func (b *BoltBackend) Get(_ context.Context, key []byte) (value []byte, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	return
}

// Set implements KeyValueBackend.Set for bbolt
func (b *BoltBackend) Set(_ context.Context, key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

// Delete implements KeyValueBackend.Delete for bbolt
func (b *BoltBackend) Delete(_ context.Context, key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

// Scan implements RangeScanner.Scan for bbolt
func (b *BoltBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

// Close implements Backend.Close for bbolt
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

package binding

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog/log"
)

const badgerGCInterval = 5 * time.Minute

// BadgerBackend implements KeyValueBackend and RangeScanner for badger
type BadgerBackend struct {
	db   *badger.DB
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBadgerBackend opens a badger database at cfg.Path and starts its value
// log garbage collector, which stops on Close.
func NewBadgerBackend(cfg Config) (Backend, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.Badger.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	b := &BadgerBackend{
		db:   db,
		stop: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.runGC()

	log.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.Badger.SyncWrites).
		Msg("Created badger backend")
	return b, nil
}

func (b *BadgerBackend) runGC() {
	defer b.wg.Done()

	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			// RunValueLogGC returns an error once nothing is left to rewrite
			for b.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}

func (b *BadgerBackend) Name() string {
	return string(BackendBadger)
}

// Get implements KeyValueBackend.Get for badger
func (b *BadgerBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Set implements KeyValueBackend.Set for badger
func (b *BadgerBackend) Set(_ context.Context, key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete implements KeyValueBackend.Delete for badger
func (b *BadgerBackend) Delete(_ context.Context, key []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Scan implements RangeScanner.Scan for badger
func (b *BadgerBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	return b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix

		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Seek(start); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			more := true
			if err := item.Value(func(val []byte) error {
				more = fn(item.Key(), val)
				return nil
			}); err != nil {
				return err
			}
			if !more {
				break
			}
		}
		return nil
	})
}

// Close implements Backend.Close for badger
func (b *BadgerBackend) Close() error {
	close(b.stop)
	b.wg.Wait()
	return b.db.Close()
}

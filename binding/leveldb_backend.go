package binding

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend implements KeyValueBackend and RangeScanner for goleveldb
type LevelDBBackend struct {
	db        *leveldb.DB
	writeOpts *opt.WriteOptions
}

// NewLevelDBBackend opens a goleveldb database at cfg.Path
func NewLevelDBBackend(cfg Config) (Backend, error) {
	o := &opt.Options{
		Filter:         filter.NewBloomFilter(10),
		ErrorIfMissing: false,
		NoSync:         !cfg.LevelDB.Sync,
	}

	db, err := leveldb.OpenFile(cfg.Path, o)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", cfg.Path).
		Bool("sync", cfg.LevelDB.Sync).
		Msg("Created goleveldb backend")

	return &LevelDBBackend{
		db:        db,
		writeOpts: &opt.WriteOptions{Sync: cfg.LevelDB.Sync},
	}, nil
}

func (l *LevelDBBackend) Name() string {
	return string(BackendLevelDB)
}

// Get implements KeyValueBackend.Get for goleveldb
func (l *LevelDBBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Set implements KeyValueBackend.Set for goleveldb
func (l *LevelDBBackend) Set(_ context.Context, key, value []byte) error {
	return l.db.Put(key, value, l.writeOpts)
}

// Delete implements KeyValueBackend.Delete for goleveldb
func (l *LevelDBBackend) Delete(_ context.Context, key []byte) error {
	return l.db.Delete(key, l.writeOpts)
}

// Scan implements RangeScanner.Scan for goleveldb
func (l *LevelDBBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	iter := l.db.NewIterator(&util.Range{Start: start, Limit: prefixEnd(prefix)}, nil)
	defer iter.Release()

	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// Close implements Backend.Close for goleveldb
func (l *LevelDBBackend) Close() error {
	return l.db.Close()
}

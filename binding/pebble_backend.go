package binding

import (
	"context"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// PebbleBackend implements KeyValueBackend and RangeScanner for Pebble
type PebbleBackend struct {
	db        *pebble.DB
	cache     *pebble.Cache
	writeOpts *pebble.WriteOptions
}

// NewPebbleBackend opens a Pebble database at cfg.Path
func NewPebbleBackend(cfg Config) (Backend, error) {
	opts := &pebble.Options{}

	var cache *pebble.Cache
	if cfg.Pebble.BlockCacheSize >= 0 {
		cache = pebble.NewCache(cfg.Pebble.BlockCacheSize)
		opts.Cache = cache

		log.Info().
			Str("block_cache_size", humanize.IBytes(uint64(cfg.Pebble.BlockCacheSize))).
			Str("path", cfg.Path).
			Msg("Created Pebble with block cache")
	} else {
		log.Info().Str("path", cfg.Path).Msg("Created Pebble with block cache disabled")
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		if cache != nil {
			cache.Unref()
		}
		return nil, err
	}

	writeOpts := pebble.NoSync
	if cfg.Pebble.Sync {
		writeOpts = pebble.Sync
	}

	return &PebbleBackend{
		db:        db,
		cache:     cache,
		writeOpts: writeOpts,
	}, nil
}

func (p *PebbleBackend) Name() string {
	return string(BackendPebble)
}

// Get implements KeyValueBackend.Get for Pebble
func (p *PebbleBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// the value is only valid until the closer is closed
	return append([]byte(nil), value...), nil
}

// Set implements KeyValueBackend.Set for Pebble
func (p *PebbleBackend) Set(_ context.Context, key, value []byte) error {
	return p.db.Set(key, value, p.writeOpts)
}

// Delete implements KeyValueBackend.Delete for Pebble
func (p *PebbleBackend) Delete(_ context.Context, key []byte) error {
	return p.db.Delete(key, p.writeOpts)
}

// Scan implements RangeScanner.Scan for Pebble
func (p *PebbleBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return err
	}
	return iter.Close()
}

// Close implements Backend.Close for Pebble
func (p *PebbleBackend) Close() error {
	var err error
	if p.db != nil {
		// persist memtables so the next run starts from sstables
		err = p.db.Flush()
		if cerr := p.db.Close(); err == nil {
			err = cerr
		}
		p.db = nil
	}

	if p.cache != nil {
		p.cache.Unref()
		p.cache = nil
	}

	return err
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

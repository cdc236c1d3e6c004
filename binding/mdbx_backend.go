package binding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/rs/zerolog/log"
)

var errEnvClosed = errors.New("database is closed")

// MDBXBackend implements KeyValueBackend and RangeScanner using MDBX (libmdbx)
type MDBXBackend struct {
	env    *mdbx.Env
	db     mdbx.DBI
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewMDBXBackend creates a new MDBX environment at cfg.Path
func NewMDBXBackend(cfg Config) (Backend, error) {
	path := cfg.Path
	// Create directory if it doesn't exist
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, fmt.Errorf("failed to create MDBX environment: %w", err)
	}

	// -1 keeps the library default for every bound except the upper one
	if err := env.SetGeometry(-1, -1, int(cfg.MDBX.MapSize), -1, -1, -1); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set geometry: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(cfg.MDBX.MaxDbs)); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set max databases: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxReaders, uint64(cfg.MDBX.MaxReaders)); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to set max readers: %w", err)
	}

	flags := uint(mdbx.EnvDefaults)
	if cfg.MDBX.NoSync {
		flags |= mdbx.UtterlyNoSync
	}
	if cfg.MDBX.NoMetaSync {
		flags |= mdbx.NoMetaSync
	}
	if cfg.MDBX.WriteMap {
		flags |= mdbx.WriteMap
	}
	if cfg.MDBX.NoReadahead {
		flags |= mdbx.NoReadahead
	}

	if err := env.Open(path, flags, 0644); err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open MDBX environment: %w", err)
	}

	var db mdbx.DBI
	err = env.Update(func(txn *mdbx.Txn) error {
		var err error
		db, err = txn.OpenRoot(mdbx.Create)
		return err
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("max_readers", cfg.MDBX.MaxReaders).
		Bool("no_sync", cfg.MDBX.NoSync).
		Msg("Created MDBX backend")

	return &MDBXBackend{
		env:  env,
		db:   db,
		path: path,
	}, nil
}

func (d *MDBXBackend) Name() string {
	return string(BackendMDBX)
}

// Get implements KeyValueBackend.Get for MDBX
func (d *MDBXBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, errEnvClosed
	}

	var value []byte
	err := d.env.View(func(txn *mdbx.Txn) error {
		val, err := txn.Get(d.db, key)
		if err != nil {
			return err
		}
		// Copy the value since it's only valid during the transaction
		value = append([]byte(nil), val...)
		return nil
	})
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set implements KeyValueBackend.Set for MDBX
func (d *MDBXBackend) Set(_ context.Context, key, value []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errEnvClosed
	}

	return d.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(d.db, key, value, 0)
	})
}

// Delete implements KeyValueBackend.Delete for MDBX
func (d *MDBXBackend) Delete(_ context.Context, key []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errEnvClosed
	}

	return d.env.Update(func(txn *mdbx.Txn) error {
		err := txn.Del(d.db, key, nil)
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// Scan implements RangeScanner.Scan for MDBX
func (d *MDBXBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return errEnvClosed
	}

	return d.env.View(func(txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(d.db)
		if err != nil {
			return err
		}
		defer cur.Close()

		k, v, err := cur.Get(start, nil, mdbx.SetRange)
		for ; err == nil; k, v, err = cur.Get(nil, nil, mdbx.Next) {
			if !bytes.HasPrefix(k, prefix) || !fn(k, v) {
				return nil
			}
		}
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// Close closes the environment
func (d *MDBXBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// Close the environment (this also closes the database)
	d.env.Close()
	log.Info().Str("path", d.path).Msg("Closed MDBX backend")
	return nil
}

package binding

import (
	"context"
)

// Backend is a storage engine opened by the handle pool and shared by every
// binding that names the same engine and location.
type Backend interface {
	// Name returns the backend type for logs and errors
	Name() string

	// Close shuts the engine down and releases its resources
	Close() error
}

// KeyValueBackend stores opaque values under byte keys. Bindings pack a
// record's fields into a single value.
type KeyValueBackend interface {
	Backend

	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key doesn't exist.
	// The returned slice is owned by the caller.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error
}

// RangeScanner is implemented by key-value backends that can iterate keys
// in byte order. Backends without it report ErrNotImplemented for scans.
type RangeScanner interface {
	// Scan calls fn for every entry whose key has the given prefix and
	// sorts at or after start, in ascending key order, until fn returns
	// false. key and value are only valid for the duration of the call.
	Scan(ctx context.Context, prefix, start []byte, fn func(key, value []byte) bool) error
}

// SQLBackend stores records as table rows and enforces existence rules
// inside its own transactions.
type SQLBackend interface {
	Backend

	// ReadRow returns the fields of table/key or ErrNotFound
	ReadRow(ctx context.Context, table, key string) (Fields, error)

	// ScanRows returns up to count rows with key >= startKey in key order
	ScanRows(ctx context.Context, table, startKey string, count int) ([]Record, error)

	// InsertRow creates table/key. Without upsert an existing key yields
	// ErrConflict; with upsert the row is replaced.
	InsertRow(ctx context.Context, table, key string, values Fields, upsert bool) error

	// UpdateRow merges values into table/key. Without upsert a missing key
	// yields ErrNotFound; with upsert the row is created. A merged row larger
	// than maxSize bytes (when positive) yields ErrValueTooLarge.
	UpdateRow(ctx context.Context, table, key string, values Fields, upsert bool, maxSize int) error

	// DeleteRow removes table/key or returns ErrNotFound
	DeleteRow(ctx context.Context, table, key string) error
}

// openBackend creates a new backend instance based on the configuration
func openBackend(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryBackend(cfg)
	case BackendPebble:
		return NewPebbleBackend(cfg)
	case BackendLevelDB:
		return NewLevelDBBackend(cfg)
	case BackendBadger:
		return NewBadgerBackend(cfg)
	case BackendBolt:
		return NewBoltBackend(cfg)
	case BackendMDBX:
		return NewMDBXBackend(cfg)
	case BackendSQL:
		return NewSQLBackend(cfg)
	case BackendS3:
		return NewS3Backend(cfg)
	default:
		return nil, configErr("unknown backend %q", cfg.Backend)
	}
}

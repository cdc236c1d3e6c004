// Package binding adapts storage engines to the fixed operation set a
// benchmarking harness issues per worker: read, scan, update, insert and
// delete, bracketed by Init and Close.
//
// A harness creates one Binding per worker. Bindings that point at the same
// engine and location share a single open handle, so an embedded engine is
// opened once per process no matter how many workers run.
package binding

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/magiconair/properties"
	"github.com/rs/zerolog/log"
)

type state int32

const (
	stateNew state = iota
	stateReady
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateNew:
		return "uninitialized"
	case stateReady:
		return "initialized"
	default:
		return "shut down"
	}
}

// Binding is a per-worker adapter between the harness and one backend.
// Data operations may be called from one goroutine at a time per the harness
// model; Init and Close must not race with them.
type Binding struct {
	props *properties.Properties
	pool  *handlePool

	mu    sync.Mutex // serializes Init and Close
	state atomic.Int32
	cfg   Config
	h     *handle
	store recordStore
}

// New returns an uninitialized binding configured by props.
func New(props *properties.Properties) *Binding {
	return newBinding(props, defaultPool)
}

func newBinding(props *properties.Properties, pool *handlePool) *Binding {
	if props == nil {
		props = properties.NewProperties()
	}
	return &Binding{props: props, pool: pool}
}

// Config returns the parsed configuration. It is only meaningful after Init.
func (b *Binding) Config() Config {
	return b.cfg
}

func (b *Binding) current() state {
	return state(b.state.Load())
}

// Init parses the configuration and opens (or joins) the backend handle.
// Invalid configuration returns an error wrapping ErrConfiguration and
// leaves the binding uninitialized.
func (b *Binding) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s := b.current(); s != stateNew {
		return fmt.Errorf("%w: init called while %s", ErrInvalidState, s)
	}

	cfg, err := ParseConfig(b.props)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h, err := b.pool.acquire(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", cfg.Backend, err)
	}
	store, err := newRecordStore(h, cfg.MaxValueSize)
	if err != nil {
		b.pool.release(h)
		return err
	}

	b.cfg = cfg
	b.h = h
	b.store = store
	b.state.Store(int32(stateReady))

	log.Debug().
		Str("backend", string(cfg.Backend)).
		Str("insert_policy", string(cfg.InsertPolicy)).
		Str("update_policy", string(cfg.UpdatePolicy)).
		Bool("delete", cfg.DeleteEnabled).
		Bool("scan", cfg.ScanEnabled).
		Msg("Binding initialized")
	return nil
}

// Close releases the backend handle. Closing more than once, or closing a
// binding that was never initialized, is a no-op.
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.current()
	b.state.Store(int32(stateClosed))
	if prev != stateReady {
		return nil
	}

	h := b.h
	b.h = nil
	b.store = nil
	return b.pool.release(h)
}

func (b *Binding) ready() error {
	if s := b.current(); s != stateReady {
		return fmt.Errorf("%w: binding is %s", ErrInvalidState, s)
	}
	return nil
}

func (b *Binding) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.OpTimeout > 0 {
		return context.WithTimeout(ctx, b.cfg.OpTimeout)
	}
	return context.WithCancel(ctx)
}

func (b *Binding) checkSize(values Fields) error {
	return checkRecordSize(values, b.cfg.MaxValueSize)
}

// done logs unexpected failures and passes err through.
func (b *Binding) done(op, table, key string, err error) error {
	if StatusOf(err) == StatusError {
		log.Warn().
			Err(err).
			Str("op", op).
			Str("table", table).
			Str("key", key).
			Msg("Operation failed")
	}
	return err
}

// Read returns the projected fields of table/key.
// Returns ErrNotFound if the record doesn't exist.
func (b *Binding) Read(ctx context.Context, table, key string, fields Projection) (Fields, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	f, err := b.store.read(ctx, table, key)
	if err != nil {
		return nil, b.done("read", table, key, err)
	}
	return fields.Apply(f), nil
}

// Scan returns up to count records of table with key >= startKey, in key
// order. Returns ErrNotImplemented when the backend cannot range scan or
// scans are disabled.
func (b *Binding) Scan(ctx context.Context, table, startKey string, count int, fields Projection) ([]Record, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	if !b.cfg.ScanEnabled {
		return nil, ErrNotImplemented
	}
	if count <= 0 {
		return []Record{}, nil
	}
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	records, err := b.store.scan(ctx, table, startKey, count)
	if err != nil {
		return nil, b.done("scan", table, startKey, err)
	}
	if len(records) > count {
		records = records[:count]
	}
	for i := range records {
		records[i].Fields = fields.Apply(records[i].Fields)
	}
	return records, nil
}

// Update overwrites the named fields of table/key and keeps the others.
// Under the strict policy a missing record yields ErrNotFound.
func (b *Binding) Update(ctx context.Context, table, key string, values Fields) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := b.checkSize(values); err != nil {
		return b.done("update", table, key, err)
	}
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	err := b.store.update(ctx, table, key, values, b.cfg.UpdatePolicy == PolicyUpsert)
	return b.done("update", table, key, err)
}

// Insert creates table/key with values. Under the strict policy an existing
// record yields ErrConflict; under upsert it is replaced.
func (b *Binding) Insert(ctx context.Context, table, key string, values Fields) error {
	if err := b.ready(); err != nil {
		return err
	}
	if err := b.checkSize(values); err != nil {
		return b.done("insert", table, key, err)
	}
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	err := b.store.insert(ctx, table, key, values, b.cfg.InsertPolicy == PolicyUpsert)
	return b.done("insert", table, key, err)
}

// Delete removes table/key. Returns ErrNotFound if it doesn't exist and
// ErrNotImplemented when deletes are disabled.
func (b *Binding) Delete(ctx context.Context, table, key string) error {
	if err := b.ready(); err != nil {
		return err
	}
	if !b.cfg.DeleteEnabled {
		return ErrNotImplemented
	}
	ctx, cancel := b.opContext(ctx)
	defer cancel()

	err := b.store.delete(ctx, table, key)
	return b.done("delete", table, key, err)
}

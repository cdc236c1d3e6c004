package binding

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const lockStripes = 256

// keyLocks serializes read-modify-write sequences on the same record key
// across every binding sharing a handle.
type keyLocks struct {
	stripes [lockStripes]sync.RWMutex
}

func (l *keyLocks) forKey(key []byte) *sync.RWMutex {
	return &l.stripes[xxhash.Sum64(key)%lockStripes]
}

// handle is an open backend shared by the bindings that reference it.
type handle struct {
	id      string
	backend Backend
	locks   *keyLocks
	cache   *recordCache // nil when caching is disabled
	refs    int
}

// handlePool hands out reference-counted backend handles. The first
// acquirer's engine options win for the lifetime of the handle.
type handlePool struct {
	mu      sync.Mutex
	handles map[string]*handle
	open    func(Config) (Backend, error)
}

var defaultPool = newHandlePool(openBackend)

func newHandlePool(open func(Config) (Backend, error)) *handlePool {
	return &handlePool{
		handles: make(map[string]*handle),
		open:    open,
	}
}

// handleID identifies the engine instance a configuration points at.
func handleID(cfg Config) string {
	switch cfg.Backend {
	case BackendMemory:
		return fmt.Sprintf("%s:%s", cfg.Backend, cfg.MemoryName)
	case BackendSQL:
		return fmt.Sprintf("%s:%s:%s", cfg.Backend, cfg.SQL.Driver, cfg.SQL.DSN)
	case BackendS3:
		return fmt.Sprintf("%s:%s/%s/%s", cfg.Backend, cfg.S3.Endpoint, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		path := cfg.Path
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return fmt.Sprintf("%s:%s", cfg.Backend, path)
	}
}

func (p *handlePool) acquire(cfg Config) (*handle, error) {
	id := handleID(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.handles[id]; ok {
		h.refs++
		log.Debug().Str("handle", id).Int("refs", h.refs).Msg("Reusing backend handle")
		return h, nil
	}

	backend, err := p.open(cfg)
	if err != nil {
		return nil, err
	}

	h := &handle{
		id:      id,
		backend: backend,
		locks:   &keyLocks{},
		refs:    1,
	}
	if cfg.CacheSize > 0 {
		cache, err := newRecordCache(cfg.CacheSize)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create record cache: %w", err)
		}
		h.cache = cache
	}
	p.handles[id] = h

	log.Debug().Str("handle", id).Msg("Opened backend handle")
	return h, nil
}

// release drops one reference and closes the backend with the last one.
func (p *handlePool) release(h *handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(p.handles, h.id)

	if h.cache != nil {
		h.cache.close()
	}
	log.Debug().Str("handle", h.id).Msg("Closing backend handle")
	if err := h.backend.Close(); err != nil {
		return backendErr(h.backend.Name(), "close", err)
	}
	return nil
}

// size returns the number of open handles.
func (p *handlePool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

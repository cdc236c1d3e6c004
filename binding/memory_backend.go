package binding

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/rs/zerolog/log"
)

type memoryItem struct {
	key   []byte
	value []byte
}

func memoryLess(a, b memoryItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// MemoryBackend implements KeyValueBackend and RangeScanner on an in-process
// B-tree. Its contents live as long as the handle that owns it.
type MemoryBackend struct {
	name string
	mu   sync.RWMutex
	tree *btree.BTreeG[memoryItem]
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend(cfg Config) (Backend, error) {
	log.Info().Str("name", cfg.MemoryName).Msg("Created in-memory backend")
	return &MemoryBackend{
		name: cfg.MemoryName,
		tree: btree.NewG(32, memoryLess),
	}, nil
}

func (m *MemoryBackend) Name() string {
	return string(BackendMemory)
}

// Get implements KeyValueBackend.Get for the B-tree
func (m *MemoryBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.tree.Get(memoryItem{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

// Set implements KeyValueBackend.Set for the B-tree
func (m *MemoryBackend) Set(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tree.ReplaceOrInsert(memoryItem{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

// Delete implements KeyValueBackend.Delete for the B-tree
func (m *MemoryBackend) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tree.Delete(memoryItem{key: key})
	return nil
}

// Scan implements RangeScanner.Scan for the B-tree
func (m *MemoryBackend) Scan(_ context.Context, prefix, start []byte, fn func(key, value []byte) bool) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.tree.AscendGreaterOrEqual(memoryItem{key: start}, func(item memoryItem) bool {
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		return fn(item.key, item.value)
	})
	return nil
}

// Close implements Backend.Close; the tree is dropped
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tree.Clear(false)
	log.Info().Str("name", m.name).Msg("Dropped in-memory backend")
	return nil
}

package binding

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/magiconair/properties"
	"github.com/stretchr/testify/require"
)

// newProps builds properties from key/value pairs.
func newProps(t *testing.T, kv ...string) *properties.Properties {
	t.Helper()
	require.Equal(t, 0, len(kv)%2, "newProps takes key/value pairs")

	p := properties.NewProperties()
	for i := 0; i < len(kv); i += 2 {
		_, _, err := p.Set(kv[i], kv[i+1])
		require.NoError(t, err)
	}
	return p
}

// memoryProps returns properties for a memory store private to the test.
func memoryProps(t *testing.T, kv ...string) *properties.Properties {
	return newProps(t, append([]string{PropBackend, "memory", PropMemoryName, t.Name()}, kv...)...)
}

// openBinding initializes a binding and closes it when the test ends.
func openBinding(t *testing.T, props *properties.Properties) *Binding {
	t.Helper()
	b := New(props)
	require.NoError(t, b.Init(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

// mapBackend is a KeyValueBackend without range scans.
type mapBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	closed int
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: map[string][]byte{}}
}

func (m *mapBackend) Name() string { return "map" }

func (m *mapBackend) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *mapBackend) Set(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *mapBackend) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *mapBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func recordKeys(records []Record) []string {
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = r.Key
	}
	return keys
}

func isSorted(keys []string) bool {
	return sort.StringsAreSorted(keys)
}

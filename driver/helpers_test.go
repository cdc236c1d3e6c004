package driver

import (
	"context"
	"testing"

	"github.com/magiconair/properties"
	"github.com/stretchr/testify/require"
	"github.com/tclemos/bindbench/binding"
)

// memoryProps returns properties for a memory store private to the test.
func memoryProps(t *testing.T, kv ...string) *properties.Properties {
	t.Helper()
	kv = append([]string{binding.PropBackend, "memory", binding.PropMemoryName, t.Name()}, kv...)
	require.Equal(t, 0, len(kv)%2, "memoryProps takes key/value pairs")

	p := properties.NewProperties()
	for i := 0; i < len(kv); i += 2 {
		_, _, err := p.Set(kv[i], kv[i+1])
		require.NoError(t, err)
	}
	return p
}

// holdStore keeps the memory store behind props open until the test ends,
// so data survives the workers closing their bindings between phases.
func holdStore(t *testing.T, props *properties.Properties) *binding.Binding {
	t.Helper()
	b := binding.New(props)
	require.NoError(t, b.Init(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

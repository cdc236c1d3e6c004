package driver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tclemos/bindbench/binding"
)

func TestTally(t *testing.T) {
	var tally Tally
	assert.Equal(t, binding.StatusOK, tally.Record(OpRead, nil))
	assert.Equal(t, binding.StatusNotFound, tally.Record(OpRead, binding.ErrNotFound))
	assert.Equal(t, binding.StatusError, tally.Record(OpInsert, errors.New("boom")))

	assert.Equal(t, uint64(1), tally.Count(OpRead, binding.StatusOK))
	assert.Equal(t, uint64(2), tally.Total(OpRead))
	assert.Equal(t, uint64(3), tally.Sum())
	assert.Zero(t, tally.Total(OpScan))
	tally.Log("test")
}

func TestLoadThenRun(t *testing.T) {
	ctx := context.Background()
	props := memoryProps(t,
		"recordcount", "200",
		"operationcount", "500",
		"threadcount", "4",
		"fieldcount", "2",
		"fieldlength", "8",
		"readproportion", "1",
		"updateproportion", "0",
	)
	store := holdStore(t, props)

	r, err := NewRunner(props)
	require.NoError(t, err)

	tally, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), tally.Count(OpInsert, binding.StatusOK))
	assert.Equal(t, uint64(200), tally.Sum())

	records, err := store.Scan(ctx, "usertable", "", 1000, binding.AllFields)
	require.NoError(t, err)
	assert.Len(t, records, 200)

	tally, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tally.Count(OpRead, binding.StatusOK))
	assert.Equal(t, uint64(500), tally.Sum())
}

func TestLoadIntoConfiguredTable(t *testing.T) {
	ctx := context.Background()
	props := memoryProps(t,
		"table", "orders",
		"recordcount", "20",
		"operationcount", "40",
		"fieldcount", "1",
		"fieldlength", "4",
		"readproportion", "1",
		"updateproportion", "0",
	)
	store := holdStore(t, props)

	r, err := NewRunner(props)
	require.NoError(t, err)
	_, err = r.Load(ctx)
	require.NoError(t, err)

	records, err := store.Scan(ctx, "orders", "", 100, binding.AllFields)
	require.NoError(t, err)
	assert.Len(t, records, 20)
	records, err = store.Scan(ctx, "usertable", "", 100, binding.AllFields)
	require.NoError(t, err)
	assert.Empty(t, records)

	tally, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), tally.Count(OpRead, binding.StatusOK))
}

func TestRunMixedOperations(t *testing.T) {
	ctx := context.Background()
	props := memoryProps(t,
		"recordcount", "100",
		"operationcount", "1000",
		"threadcount", "3",
		"readproportion", "0.4",
		"updateproportion", "0.2",
		"insertproportion", "0.2",
		"scanproportion", "0.1",
		"deleteproportion", "0.1",
		"maxscanlength", "5",
	)
	holdStore(t, props)

	r, err := NewRunner(props)
	require.NoError(t, err)
	_, err = r.Load(ctx)
	require.NoError(t, err)

	tally, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tally.Sum())
	for _, op := range Ops {
		assert.Positive(t, tally.Total(op), "%s never issued", op)
		assert.Zero(t, tally.Count(op, binding.StatusError), "%s failed", op)
	}
	// inserts use fresh keys
	assert.Zero(t, tally.Count(OpInsert, binding.StatusConflict))
	assert.Equal(t, tally.Total(OpInsert), tally.Count(OpInsert, binding.StatusOK))
}

func TestRunNotImplementedIsTallied(t *testing.T) {
	ctx := context.Background()
	props := memoryProps(t,
		binding.PropScan, "false",
		"recordcount", "10",
		"operationcount", "50",
		"readproportion", "0",
		"updateproportion", "0",
		"scanproportion", "1",
	)

	r, err := NewRunner(props)
	require.NoError(t, err)
	tally, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), tally.Count(OpScan, binding.StatusNotImplemented))
}

func TestRunWithKeysFile(t *testing.T) {
	ctx := context.Background()
	props := memoryProps(t,
		"recordcount", "50",
		"operationcount", "100",
		"threadcount", "2",
		"readproportion", "1",
		"updateproportion", "0",
		"keysfile", filepath.Join(t.TempDir(), "keys.bin"),
	)
	holdStore(t, props)

	r, err := NewRunner(props)
	require.NoError(t, err)
	_, err = r.Load(ctx)
	require.NoError(t, err)

	keys, err := loadKeysFromFile(r.Config().KeysFile)
	require.NoError(t, err)
	assert.Len(t, keys, 50)

	tally, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), tally.Count(OpRead, binding.StatusOK))
}

func TestLoadConfigurationError(t *testing.T) {
	props := memoryProps(t, binding.PropInsertPolicy, "whenever", "threadcount", "2")

	r, err := NewRunner(props)
	require.NoError(t, err)

	_, err = r.Load(context.Background())
	require.Error(t, err)
	assert.True(t, binding.IsConfiguration(err), "got %v", err)
}

package binding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(newProps(t, PropBackend, "memory"))
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want, cfg)
	assert.Equal(t, PolicyStrict, cfg.InsertPolicy)
	assert.Equal(t, PolicyStrict, cfg.UpdatePolicy)
	assert.True(t, cfg.DeleteEnabled)
	assert.True(t, cfg.ScanEnabled)
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := ParseConfig(newProps(t,
		PropBackend, " MDBX ",
		PropPath, "/tmp/db",
		PropInsertPolicy, "UPSERT",
		PropUpdatePolicy, "upsert",
		PropDelete, "false",
		PropScan, "0",
		PropCacheSize, "4096",
		PropMaxValueSize, "100",
		PropOpTimeout, "250ms",
		PropMDBXMapSize, "1073741824",
		PropMDBXMaxReaders, "64",
		PropMDBXNoSync, "true",
		PropMDBXWriteMap, "1",
		"unrelated.key", "ignored",
	))
	require.NoError(t, err)

	assert.Equal(t, BackendMDBX, cfg.Backend)
	assert.Equal(t, "/tmp/db", cfg.Path)
	assert.Equal(t, PolicyUpsert, cfg.InsertPolicy)
	assert.Equal(t, PolicyUpsert, cfg.UpdatePolicy)
	assert.False(t, cfg.DeleteEnabled)
	assert.False(t, cfg.ScanEnabled)
	assert.Equal(t, int64(4096), cfg.CacheSize)
	assert.Equal(t, 100, cfg.MaxValueSize)
	assert.Equal(t, 250*time.Millisecond, cfg.OpTimeout)
	assert.Equal(t, int64(1<<30), cfg.MDBX.MapSize)
	assert.Equal(t, 2, cfg.MDBX.MaxDbs)
	assert.Equal(t, 64, cfg.MDBX.MaxReaders)
	assert.True(t, cfg.MDBX.NoSync)
	assert.True(t, cfg.MDBX.WriteMap)
	assert.False(t, cfg.MDBX.NoMetaSync)
}

func TestParseConfigRemoteBackends(t *testing.T) {
	cfg, err := ParseConfig(newProps(t,
		PropBackend, "sql",
		PropSQLDriver, "MySQL",
		PropSQLDSN, "user:pw@tcp(localhost:3306)/bench",
		PropSQLMaxOpenConns, "4",
	))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.SQL.Driver)
	assert.Equal(t, 4, cfg.SQL.MaxOpenConns)

	cfg, err = ParseConfig(newProps(t,
		PropBackend, "s3",
		PropS3Bucket, "bench",
		PropS3Endpoint, "http://localhost:9000",
		PropS3PathStyle, "true",
	))
	require.NoError(t, err)
	assert.Equal(t, "bench", cfg.S3.Bucket)
	assert.Equal(t, "bindbench", cfg.S3.Prefix)
	assert.True(t, cfg.S3.PathStyle)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
	}{
		{"nil backend", nil},
		{"blank backend", []string{PropBackend, "  "}},
		{"unknown backend", []string{PropBackend, "cassandra"}},
		{"disk backend without path", []string{PropBackend, "leveldb"}},
		{"bad insert policy", []string{PropBackend, "memory", PropInsertPolicy, "sometimes"}},
		{"bad update policy", []string{PropBackend, "memory", PropUpdatePolicy, "never"}},
		{"bad bool", []string{PropBackend, "memory", PropDelete, "maybe"}},
		{"bad int", []string{PropBackend, "memory", PropCacheSize, "lots"}},
		{"negative cache", []string{PropBackend, "memory", PropCacheSize, "-1"}},
		{"negative max value size", []string{PropBackend, "memory", PropMaxValueSize, "-5"}},
		{"bad duration", []string{PropBackend, "memory", PropOpTimeout, "soon"}},
		{"mdbx without readers", []string{PropBackend, "mdbx", PropPath, "x", PropMDBXMaxReaders, "0"}},
		{"sql bad driver", []string{PropBackend, "sql", PropSQLDriver, "oracle", PropSQLDSN, "x"}},
		{"sql without dsn", []string{PropBackend, "sql"}},
		{"sql zero conns", []string{PropBackend, "sql", PropSQLDSN, "x", PropSQLMaxOpenConns, "0"}},
		{"s3 without bucket", []string{PropBackend, "s3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(newProps(t, tt.kv...))
			require.Error(t, err)
			assert.True(t, IsConfiguration(err), "got %v", err)
			assert.Equal(t, StatusError, StatusOf(err))
		})
	}
}

func TestParseConfigNilProperties(t *testing.T) {
	_, err := ParseConfig(nil)
	assert.True(t, IsConfiguration(err))
}

func TestHandleID(t *testing.T) {
	a := Default()
	a.Backend = BackendPebble
	a.Path = "data/../data/pebble"
	b := a
	b.Path = "data/pebble"
	assert.Equal(t, handleID(a), handleID(b))

	c := a
	c.Backend = BackendLevelDB
	assert.NotEqual(t, handleID(a), handleID(c))

	m1, m2 := Default(), Default()
	m2.MemoryName = "other"
	assert.NotEqual(t, handleID(m1), handleID(m2))
}

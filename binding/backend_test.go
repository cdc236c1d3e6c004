package binding

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/magiconair/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// conformance runs the contract every backend must honor.
func conformance(t *testing.T, props *properties.Properties) {
	ctx := context.Background()
	// a table per run keeps remote backends independent of leftovers
	table := fmt.Sprintf("usertable_%d", time.Now().UnixNano())
	other := table + "_x"

	b := New(props)
	require.NoError(t, b.Init(ctx))
	defer func() {
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())
	}()

	t.Run("round trip", func(t *testing.T) {
		values := Fields{"field0": []byte("v0"), "field1": []byte{0, 1, 2, 0xff}}
		require.NoError(t, b.Insert(ctx, table, "user1", values))

		got, err := b.Read(ctx, table, "user1", AllFields)
		require.NoError(t, err)
		assert.True(t, values.Equal(got), "got %v", got)

		got, err = b.Read(ctx, table, "user1", Project("field1"))
		require.NoError(t, err)
		assert.Equal(t, []string{"field1"}, got.Names())
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := b.Read(ctx, table, "nobody", AllFields)
		assert.Equal(t, StatusNotFound, StatusOf(err))
		assert.Equal(t, StatusNotFound, StatusOf(b.Update(ctx, table, "nobody", Fields{"f": []byte("v")})))
		assert.Equal(t, StatusNotFound, StatusOf(b.Delete(ctx, table, "nobody")))
	})

	t.Run("insert conflict", func(t *testing.T) {
		require.NoError(t, b.Insert(ctx, table, "user2", Fields{"f": []byte("a")}))
		assert.Equal(t, StatusConflict, StatusOf(b.Insert(ctx, table, "user2", Fields{"f": []byte("b")})))

		got, err := b.Read(ctx, table, "user2", AllFields)
		require.NoError(t, err)
		assert.Equal(t, "a", string(got["f"]))
	})

	t.Run("update merge", func(t *testing.T) {
		require.NoError(t, b.Insert(ctx, table, "user3", Fields{"a": []byte("1"), "b": []byte("2")}))
		require.NoError(t, b.Update(ctx, table, "user3", Fields{"b": []byte("20")}))

		got, err := b.Read(ctx, table, "user3", AllFields)
		require.NoError(t, err)
		assert.True(t, Fields{"a": []byte("1"), "b": []byte("20")}.Equal(got), "got %v", got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.Insert(ctx, table, "user4", Fields{"f": []byte("v")}))
		require.NoError(t, b.Delete(ctx, table, "user4"))

		_, err := b.Read(ctx, table, "user4", AllFields)
		assert.Equal(t, StatusNotFound, StatusOf(err))
	})

	t.Run("scan", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			key := fmt.Sprintf("scan%02d", i)
			require.NoError(t, b.Insert(ctx, table, key, Fields{"f": []byte(key), "g": []byte("g")}))
			require.NoError(t, b.Insert(ctx, other, key, Fields{"f": []byte("other")}))
		}

		records, err := b.Scan(ctx, table, "scan03", 4, Project("f"))
		require.NoError(t, err)
		assert.Equal(t, []string{"scan03", "scan04", "scan05", "scan06"}, recordKeys(records))
		for _, r := range records {
			assert.Equal(t, r.Key, string(r.Fields["f"]))
			assert.Equal(t, []string{"f"}, r.Fields.Names())
		}

		records, err = b.Scan(ctx, table, "scan105", 50, AllFields)
		require.NoError(t, err)
		assert.Equal(t, []string{"scan11"}, recordKeys(records))

		records, err = b.Scan(ctx, table, "", 100, AllFields)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(records), 100)
		assert.True(t, isSorted(recordKeys(records)))
		for _, r := range records {
			assert.NotEqual(t, "other", string(r.Fields["f"]), "scan leaked into another table")
		}
	})
}

func TestMemoryBackendConformance(t *testing.T) {
	conformance(t, memoryProps(t))
}

func TestPebbleBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "pebble",
		PropPath, filepath.Join(t.TempDir(), "pebble"),
		PropPebbleBlockCacheSize, "1048576",
	))
}

func TestPebbleBackendCacheDisabled(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "pebble",
		PropPath, filepath.Join(t.TempDir(), "pebble"),
		PropPebbleBlockCacheSize, "-1",
	))
}

func TestLevelDBBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "leveldb",
		PropPath, filepath.Join(t.TempDir(), "leveldb"),
	))
}

func TestBadgerBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "badger",
		PropPath, filepath.Join(t.TempDir(), "badger"),
	))
}

func TestBoltBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "bolt",
		PropPath, filepath.Join(t.TempDir(), "bolt", "records.db"),
		PropBoltNoSync, "true",
	))
}

func TestMDBXBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "mdbx",
		PropPath, filepath.Join(t.TempDir(), "mdbx"),
		PropMDBXNoSync, "true",
	))
}

func TestCachedBackendConformance(t *testing.T) {
	conformance(t, newProps(t,
		PropBackend, "leveldb",
		PropPath, filepath.Join(t.TempDir(), "leveldb"),
		PropCacheSize, "1048576",
	))
}

func TestSQLBackendConformance(t *testing.T) {
	dsn := os.Getenv("BINDBENCH_SQL_DSN")
	if dsn == "" {
		t.Skip("BINDBENCH_SQL_DSN not set")
	}
	driver := os.Getenv("BINDBENCH_SQL_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	conformance(t, newProps(t,
		PropBackend, "sql",
		PropSQLDriver, driver,
		PropSQLDSN, dsn,
	))
}

func TestS3BackendConformance(t *testing.T) {
	bucket := os.Getenv("BINDBENCH_S3_BUCKET")
	if bucket == "" {
		t.Skip("BINDBENCH_S3_BUCKET not set")
	}
	conformance(t, newProps(t,
		PropBackend, "s3",
		PropS3Bucket, bucket,
		PropS3Endpoint, os.Getenv("BINDBENCH_S3_ENDPOINT"),
		PropS3Region, os.Getenv("AWS_REGION"),
		PropS3PathStyle, "true",
		PropS3Prefix, fmt.Sprintf("bindbench-test-%d", time.Now().UnixNano()),
	))
}

func TestDiskBackendReopen(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{"pebble", "leveldb", "badger", "bolt", "mdbx"} {
		t.Run(backend, func(t *testing.T) {
			props := newProps(t,
				PropBackend, backend,
				PropPath, filepath.Join(t.TempDir(), backend, "db"),
			)

			b := New(props)
			require.NoError(t, b.Init(ctx))
			require.NoError(t, b.Insert(ctx, "t", "k", Fields{"f": []byte("persisted")}))
			require.NoError(t, b.Close())

			b = New(props)
			require.NoError(t, b.Init(ctx))
			defer b.Close()
			got, err := b.Read(ctx, "t", "k", AllFields)
			require.NoError(t, err)
			assert.Equal(t, "persisted", string(got["f"]))
		})
	}
}

package binding

import (
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
)

// BackendType names a storage engine a binding can drive.
type BackendType string

const (
	BackendMemory  BackendType = "memory"
	BackendPebble  BackendType = "pebble"
	BackendLevelDB BackendType = "leveldb"
	BackendBadger  BackendType = "badger"
	BackendBolt    BackendType = "bolt"
	BackendMDBX    BackendType = "mdbx"
	BackendSQL     BackendType = "sql"
	BackendS3      BackendType = "s3"
)

// Policy selects how insert and update treat the existence of a key.
type Policy string

const (
	// PolicyStrict makes insert fail with ErrConflict on an existing key and
	// update fail with ErrNotFound on a missing one.
	PolicyStrict Policy = "strict"
	// PolicyUpsert makes both operations write regardless of existence.
	PolicyUpsert Policy = "upsert"
)

// Property names understood by the binding.
const (
	PropBackend      = "backend"
	PropPath         = "path"
	PropMemoryName   = "memory.name"
	PropInsertPolicy = "binding.insert_policy"
	PropUpdatePolicy = "binding.update_policy"
	PropDelete       = "binding.delete"
	PropScan         = "binding.scan"
	PropCacheSize    = "binding.cache_size"
	PropMaxValueSize = "binding.max_value_size"
	PropOpTimeout    = "binding.op_timeout"

	PropPebbleBlockCacheSize = "pebble.block_cache_size"
	PropPebbleSync           = "pebble.sync"
	PropLevelDBSync          = "leveldb.sync"
	PropBadgerSyncWrites     = "badger.sync_writes"
	PropBoltNoSync           = "bolt.no_sync"

	PropMDBXMapSize     = "mdbx.map_size"
	PropMDBXMaxDbs      = "mdbx.max_dbs"
	PropMDBXMaxReaders  = "mdbx.max_readers"
	PropMDBXNoSync      = "mdbx.no_sync"
	PropMDBXNoMetaSync  = "mdbx.no_meta_sync"
	PropMDBXWriteMap    = "mdbx.write_map"
	PropMDBXNoReadahead = "mdbx.no_readahead"

	PropSQLDriver       = "sql.driver"
	PropSQLDSN          = "sql.dsn"
	PropSQLMaxOpenConns = "sql.max_open_conns"

	PropS3Bucket    = "s3.bucket"
	PropS3Region    = "s3.region"
	PropS3Endpoint  = "s3.endpoint"
	PropS3Prefix    = "s3.prefix"
	PropS3PathStyle = "s3.path_style"
)

// Config holds the parsed binding configuration.
type Config struct {
	Backend BackendType
	Path    string // on-disk location for embedded engines

	MemoryName string // store name shared by memory bindings

	InsertPolicy  Policy
	UpdatePolicy  Policy
	DeleteEnabled bool
	ScanEnabled   bool
	CacheSize     int64         // record cache budget in bytes, 0 disables
	MaxValueSize  int           // combined field bytes per record, 0 is unlimited
	OpTimeout     time.Duration // per operation deadline, 0 is none

	Pebble  PebbleConfig
	LevelDB LevelDBConfig
	Badger  BadgerConfig
	Bolt    BoltConfig
	MDBX    MDBXConfig
	SQL     SQLConfig
	S3      S3Config
}

// PebbleConfig holds Pebble-specific options
type PebbleConfig struct {
	BlockCacheSize int64 // bytes, negative means disabled
	Sync           bool
}

// LevelDBConfig holds goleveldb-specific options
type LevelDBConfig struct {
	Sync bool
}

// BadgerConfig holds badger-specific options
type BadgerConfig struct {
	SyncWrites bool
}

// BoltConfig holds bbolt-specific options
type BoltConfig struct {
	NoSync bool
}

// MDBXConfig holds MDBX-specific configuration options
type MDBXConfig struct {
	// Database geometry settings
	MapSize    int64 // Maximum map size in bytes (-1 for default)
	MaxDbs     int   // Maximum number of databases (default: 2)
	MaxReaders int   // Maximum number of readers (default: 128)

	// Performance settings
	NoSync      bool // Don't fsync after commit
	NoMetaSync  bool // Don't fsync metapage after commit
	WriteMap    bool // Use writeable memory map
	NoReadahead bool // Disable readahead
}

// SQLConfig holds the SQL backend connection settings.
type SQLConfig struct {
	Driver       string // "postgres" or "mysql"
	DSN          string
	MaxOpenConns int
}

// S3Config holds the object store settings.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for S3-compatible stores
	Prefix    string
	PathStyle bool
}

// Default returns the configuration used for unset properties.
func Default() Config {
	return Config{
		Backend:       BackendMemory,
		MemoryName:    "default",
		InsertPolicy:  PolicyStrict,
		UpdatePolicy:  PolicyStrict,
		DeleteEnabled: true,
		ScanEnabled:   true,
		Pebble: PebbleConfig{
			BlockCacheSize: 8 << 20,
		},
		MDBX: MDBXConfig{
			MapSize:    -1,
			MaxDbs:     2,
			MaxReaders: 128,
		},
		SQL: SQLConfig{
			Driver:       "postgres",
			MaxOpenConns: 16,
		},
		S3: S3Config{
			Prefix: "bindbench",
		},
	}
}

// ParseConfig reads a Config from p. Unknown keys are ignored; missing keys
// take their Default value. Invalid values wrap ErrConfiguration.
func ParseConfig(p *properties.Properties) (Config, error) {
	cfg := Default()
	if p == nil {
		p = properties.NewProperties()
	}
	r := propReader{p: p}

	backend, ok := p.Get(PropBackend)
	if !ok || strings.TrimSpace(backend) == "" {
		return cfg, configErr("%q is required", PropBackend)
	}
	cfg.Backend = BackendType(strings.ToLower(strings.TrimSpace(backend)))
	cfg.Path = r.str(PropPath, cfg.Path)
	cfg.MemoryName = r.str(PropMemoryName, cfg.MemoryName)

	cfg.InsertPolicy = Policy(strings.ToLower(r.str(PropInsertPolicy, string(cfg.InsertPolicy))))
	cfg.UpdatePolicy = Policy(strings.ToLower(r.str(PropUpdatePolicy, string(cfg.UpdatePolicy))))
	cfg.DeleteEnabled = r.boolean(PropDelete, cfg.DeleteEnabled)
	cfg.ScanEnabled = r.boolean(PropScan, cfg.ScanEnabled)
	cfg.CacheSize = r.int64(PropCacheSize, cfg.CacheSize)
	cfg.MaxValueSize = r.int(PropMaxValueSize, cfg.MaxValueSize)
	cfg.OpTimeout = r.duration(PropOpTimeout, cfg.OpTimeout)

	cfg.Pebble.BlockCacheSize = r.int64(PropPebbleBlockCacheSize, cfg.Pebble.BlockCacheSize)
	cfg.Pebble.Sync = r.boolean(PropPebbleSync, cfg.Pebble.Sync)
	cfg.LevelDB.Sync = r.boolean(PropLevelDBSync, cfg.LevelDB.Sync)
	cfg.Badger.SyncWrites = r.boolean(PropBadgerSyncWrites, cfg.Badger.SyncWrites)
	cfg.Bolt.NoSync = r.boolean(PropBoltNoSync, cfg.Bolt.NoSync)

	cfg.MDBX.MapSize = r.int64(PropMDBXMapSize, cfg.MDBX.MapSize)
	cfg.MDBX.MaxDbs = r.int(PropMDBXMaxDbs, cfg.MDBX.MaxDbs)
	cfg.MDBX.MaxReaders = r.int(PropMDBXMaxReaders, cfg.MDBX.MaxReaders)
	cfg.MDBX.NoSync = r.boolean(PropMDBXNoSync, cfg.MDBX.NoSync)
	cfg.MDBX.NoMetaSync = r.boolean(PropMDBXNoMetaSync, cfg.MDBX.NoMetaSync)
	cfg.MDBX.WriteMap = r.boolean(PropMDBXWriteMap, cfg.MDBX.WriteMap)
	cfg.MDBX.NoReadahead = r.boolean(PropMDBXNoReadahead, cfg.MDBX.NoReadahead)

	cfg.SQL.Driver = strings.ToLower(r.str(PropSQLDriver, cfg.SQL.Driver))
	cfg.SQL.DSN = r.str(PropSQLDSN, cfg.SQL.DSN)
	cfg.SQL.MaxOpenConns = r.int(PropSQLMaxOpenConns, cfg.SQL.MaxOpenConns)

	cfg.S3.Bucket = r.str(PropS3Bucket, cfg.S3.Bucket)
	cfg.S3.Region = r.str(PropS3Region, cfg.S3.Region)
	cfg.S3.Endpoint = r.str(PropS3Endpoint, cfg.S3.Endpoint)
	cfg.S3.Prefix = r.str(PropS3Prefix, cfg.S3.Prefix)
	cfg.S3.PathStyle = r.boolean(PropS3PathStyle, cfg.S3.PathStyle)

	if r.err != nil {
		return cfg, r.err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.InsertPolicy {
	case PolicyStrict, PolicyUpsert:
	default:
		return configErr("%s must be %q or %q, got %q", PropInsertPolicy, PolicyStrict, PolicyUpsert, c.InsertPolicy)
	}
	switch c.UpdatePolicy {
	case PolicyStrict, PolicyUpsert:
	default:
		return configErr("%s must be %q or %q, got %q", PropUpdatePolicy, PolicyStrict, PolicyUpsert, c.UpdatePolicy)
	}
	if c.CacheSize < 0 {
		return configErr("%s must not be negative", PropCacheSize)
	}
	if c.MaxValueSize < 0 {
		return configErr("%s must not be negative", PropMaxValueSize)
	}
	if c.OpTimeout < 0 {
		return configErr("%s must not be negative", PropOpTimeout)
	}

	switch c.Backend {
	case BackendMemory:
		if c.MemoryName == "" {
			return configErr("%s must not be empty", PropMemoryName)
		}
	case BackendPebble, BackendLevelDB, BackendBadger, BackendBolt, BackendMDBX:
		if c.Path == "" {
			return configErr("%s is required for the %s backend", PropPath, c.Backend)
		}
		if c.Backend == BackendMDBX && (c.MDBX.MaxDbs < 1 || c.MDBX.MaxReaders < 1) {
			return configErr("%s and %s must be positive", PropMDBXMaxDbs, PropMDBXMaxReaders)
		}
	case BackendSQL:
		if c.SQL.Driver != "postgres" && c.SQL.Driver != "mysql" {
			return configErr("%s must be \"postgres\" or \"mysql\", got %q", PropSQLDriver, c.SQL.Driver)
		}
		if c.SQL.DSN == "" {
			return configErr("%s is required for the sql backend", PropSQLDSN)
		}
		if c.SQL.MaxOpenConns < 1 {
			return configErr("%s must be positive", PropSQLMaxOpenConns)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return configErr("%s is required for the s3 backend", PropS3Bucket)
		}
	default:
		return configErr("unknown backend %q", c.Backend)
	}
	return nil
}

// propReader parses typed properties and keeps the first parse failure.
// properties.Properties' typed getters fall back to the default on bad
// input, which would hide configuration mistakes.
type propReader struct {
	p   *properties.Properties
	err error
}

func (r *propReader) raw(key string) (string, bool) {
	v, ok := r.p.Get(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *propReader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = configErr("%s=%q: %v", key, v, err)
	}
}

func (r *propReader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *propReader) boolean(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *propReader) int64(key string, def int64) int64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return i
}

func (r *propReader) int(key string, def int) int {
	return int(r.int64(key, int64(def)))
}

func (r *propReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

package binding

import (
	"github.com/dgraph-io/ristretto"
)

// recordCache keeps decoded records keyed by their engine key. It is
// advisory: ristretto may drop sets under contention.
type recordCache struct {
	cache *ristretto.Cache
}

func newRecordCache(maxCost int64) (*recordCache, error) {
	// ten counters per expected entry, assuming ~64 byte records
	counters := maxCost / 64 * 10
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &recordCache{cache: cache}, nil
}

func (c *recordCache) get(key []byte) (Fields, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(Fields).Clone(), true
}

func (c *recordCache) set(key []byte, f Fields) {
	c.cache.Set(key, f.Clone(), int64(len(key)+f.Size()))
}

func (c *recordCache) invalidate(key []byte) {
	c.cache.Del(key)
	c.cache.Wait()
}

func (c *recordCache) close() {
	c.cache.Close()
}

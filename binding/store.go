package binding

import (
	"context"
	"errors"
)

// recordStore is the record-level view a Binding drives. It hides whether
// the backend is key-value or SQL.
type recordStore interface {
	read(ctx context.Context, table, key string) (Fields, error)
	scan(ctx context.Context, table, startKey string, count int) ([]Record, error)
	insert(ctx context.Context, table, key string, values Fields, upsert bool) error
	update(ctx context.Context, table, key string, values Fields, upsert bool) error
	delete(ctx context.Context, table, key string) error
}

// newRecordStore picks the store for h's capability. maxSize bounds the
// merged record an update writes, 0 is unlimited.
func newRecordStore(h *handle, maxSize int) (recordStore, error) {
	switch b := h.backend.(type) {
	case KeyValueBackend:
		return &kvStore{kv: b, locks: h.locks, cache: h.cache, maxSize: maxSize}, nil
	case SQLBackend:
		return &sqlStore{sql: b, maxSize: maxSize}, nil
	default:
		return nil, configErr("backend %s exposes no supported capability", h.backend.Name())
	}
}

// kvStore maps records onto a KeyValueBackend: one msgpack-encoded entry per
// record under recordKey(table, key).
type kvStore struct {
	kv      KeyValueBackend
	locks   *keyLocks
	cache   *recordCache
	maxSize int
}

func (s *kvStore) wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotImplemented) || errors.Is(err, ErrValueTooLarge) {
		return err
	}
	return backendErr(s.kv.Name(), op, err)
}

func (s *kvStore) get(ctx context.Context, k []byte) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.wrap("get", err)
	}
	raw, err := s.kv.Get(ctx, k)
	if err != nil {
		return nil, s.wrap("get", err)
	}
	f, err := decodeFields(raw)
	if err != nil {
		return nil, s.wrap("decode", err)
	}
	return f, nil
}

func (s *kvStore) put(ctx context.Context, k []byte, f Fields) error {
	if err := ctx.Err(); err != nil {
		return s.wrap("set", err)
	}
	enc, err := encodeFields(f)
	if err != nil {
		return s.wrap("encode", err)
	}
	if err := s.kv.Set(ctx, k, enc); err != nil {
		return s.wrap("set", err)
	}
	if s.cache != nil {
		s.cache.invalidate(k)
	}
	return nil
}

func (s *kvStore) read(ctx context.Context, table, key string) (Fields, error) {
	k := recordKey(table, key)
	if s.cache == nil {
		return s.get(ctx, k)
	}

	if f, ok := s.cache.get(k); ok {
		return f, nil
	}
	// hold the read side so a concurrent write cannot be overtaken by a
	// stale fill
	mu := s.locks.forKey(k)
	mu.RLock()
	defer mu.RUnlock()

	f, err := s.get(ctx, k)
	if err != nil {
		return nil, err
	}
	s.cache.set(k, f)
	return f, nil
}

const scanPrealloc = 128

func (s *kvStore) scan(ctx context.Context, table, startKey string, count int) ([]Record, error) {
	rs, ok := s.kv.(RangeScanner)
	if !ok {
		return nil, ErrNotImplemented
	}
	if err := ctx.Err(); err != nil {
		return nil, s.wrap("scan", err)
	}

	prefix := tablePrefix(table)
	// count is caller-supplied and may be huge
	records := make([]Record, 0, min(count, scanPrealloc))
	var decodeErr error
	err := rs.Scan(ctx, prefix, recordKey(table, startKey), func(k, v []byte) bool {
		f, err := decodeFields(v)
		if err != nil {
			decodeErr = err
			return false
		}
		records = append(records, Record{
			Key:    string(k[len(prefix):]),
			Fields: f.Clone(),
		})
		return len(records) < count
	})
	if err != nil {
		return nil, s.wrap("scan", err)
	}
	if decodeErr != nil {
		return nil, s.wrap("decode", decodeErr)
	}
	return records, nil
}

func (s *kvStore) insert(ctx context.Context, table, key string, values Fields, upsert bool) error {
	k := recordKey(table, key)
	mu := s.locks.forKey(k)
	mu.Lock()
	defer mu.Unlock()

	if !upsert {
		_, err := s.get(ctx, k)
		switch {
		case err == nil:
			return ErrConflict
		case !IsNotFound(err):
			return err
		}
	}
	return s.put(ctx, k, values)
}

func (s *kvStore) update(ctx context.Context, table, key string, values Fields, upsert bool) error {
	k := recordKey(table, key)
	mu := s.locks.forKey(k)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.get(ctx, k)
	if err != nil {
		if !IsNotFound(err) || !upsert {
			return err
		}
		current = Fields{}
	}
	merged := current.merge(values)
	if err := checkRecordSize(merged, s.maxSize); err != nil {
		return err
	}
	return s.put(ctx, k, merged)
}

func (s *kvStore) delete(ctx context.Context, table, key string) error {
	k := recordKey(table, key)
	mu := s.locks.forKey(k)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return s.wrap("delete", err)
	}
	if _, err := s.kv.Get(ctx, k); err != nil {
		return s.wrap("get", err)
	}
	if err := s.kv.Delete(ctx, k); err != nil {
		return s.wrap("delete", err)
	}
	if s.cache != nil {
		s.cache.invalidate(k)
	}
	return nil
}

// sqlStore forwards to an SQLBackend, which owns the existence checks.
type sqlStore struct {
	sql     SQLBackend
	maxSize int
}

func (s *sqlStore) wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValueTooLarge) {
		return err
	}
	return backendErr(s.sql.Name(), op, err)
}

func (s *sqlStore) read(ctx context.Context, table, key string) (Fields, error) {
	f, err := s.sql.ReadRow(ctx, table, key)
	return f, s.wrap("read", err)
}

func (s *sqlStore) scan(ctx context.Context, table, startKey string, count int) ([]Record, error) {
	records, err := s.sql.ScanRows(ctx, table, startKey, count)
	return records, s.wrap("scan", err)
}

func (s *sqlStore) insert(ctx context.Context, table, key string, values Fields, upsert bool) error {
	return s.wrap("insert", s.sql.InsertRow(ctx, table, key, values, upsert))
}

func (s *sqlStore) update(ctx context.Context, table, key string, values Fields, upsert bool) error {
	return s.wrap("update", s.sql.UpdateRow(ctx, table, key, values, upsert, s.maxSize))
}

func (s *sqlStore) delete(ctx context.Context, table, key string) error {
	return s.wrap("delete", s.sql.DeleteRow(ctx, table, key))
}

package binding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v4"
)

// Fields maps field names to opaque values.
type Fields map[string][]byte

// Record is a keyed set of fields returned by Scan.
type Record struct {
	Key    string
	Fields Fields
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for name, v := range f {
		out[name] = append([]byte(nil), v...)
	}
	return out
}

// Equal reports whether f and o hold the same fields and values.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for name, v := range f {
		ov, ok := o[name]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// Size returns the total number of value bytes.
func (f Fields) Size() int {
	n := 0
	for _, v := range f {
		n += len(v)
	}
	return n
}

// checkRecordSize fails with ErrValueTooLarge when f exceeds limit bytes.
// A limit of 0 disables the check.
func checkRecordSize(f Fields, limit int) error {
	if n := f.Size(); limit > 0 && n > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLarge, n, limit)
	}
	return nil
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// merge overwrites the fields of f named in values, keeping the rest.
func (f Fields) merge(values Fields) Fields {
	out := make(Fields, len(f)+len(values))
	for name, v := range f {
		out[name] = v
	}
	for name, v := range values {
		out[name] = v
	}
	return out
}

// Projection is the set of fields a read or scan is restricted to.
// The zero Projection selects every field.
type Projection struct {
	names map[string]struct{}
}

// AllFields selects every field of a record.
var AllFields = Projection{}

// Project builds a projection over the named fields.
func Project(names ...string) Projection {
	if len(names) == 0 {
		return AllFields
	}
	p := Projection{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		p.names[name] = struct{}{}
	}
	return p
}

// All reports whether the projection is unrestricted.
func (p Projection) All() bool {
	return len(p.names) == 0
}

// Has reports whether the named field is selected.
func (p Projection) Has(name string) bool {
	if p.All() {
		return true
	}
	_, ok := p.names[name]
	return ok
}

// Apply returns the selected subset of f. The result shares value slices
// with f.
func (p Projection) Apply(f Fields) Fields {
	if p.All() {
		return f
	}
	out := make(Fields, len(p.names))
	for name, v := range f {
		if p.Has(name) {
			out[name] = v
		}
	}
	return out
}

func encodeFields(f Fields) ([]byte, error) {
	return msgpack.Marshal(map[string][]byte(f))
}

func decodeFields(b []byte) (Fields, error) {
	var m map[string][]byte
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string][]byte{}
	}
	return Fields(m), nil
}

// tablePrefix returns the key prefix shared by every record of table:
// uvarint(len(table)) followed by the table name.
func tablePrefix(table string) []byte {
	buf := make([]byte, binary.MaxVarintLen64+len(table))
	n := binary.PutUvarint(buf, uint64(len(table)))
	n += copy(buf[n:], table)
	return buf[:n]
}

// recordKey returns the engine key for table/key. Records of a table sort
// contiguously and in key byte order.
func recordKey(table, key string) []byte {
	prefix := tablePrefix(table)
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

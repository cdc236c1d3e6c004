package binding

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsEncoding(t *testing.T) {
	f := Fields{"a": []byte("1"), "bin": {0, 0xff, 0x80}, "empty": {}}
	enc, err := encodeFields(f)
	require.NoError(t, err)

	got, err := decodeFields(enc)
	require.NoError(t, err)
	assert.True(t, f.Equal(got), "got %v", got)

	enc, err = encodeFields(Fields{})
	require.NoError(t, err)
	got, err = decodeFields(enc)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = decodeFields([]byte{0xc1})
	assert.Error(t, err)
}

func TestFieldsMerge(t *testing.T) {
	base := Fields{"a": []byte("1"), "b": []byte("2")}
	merged := base.merge(Fields{"b": []byte("3"), "c": []byte("4")})

	assert.True(t, Fields{"a": []byte("1"), "b": []byte("3"), "c": []byte("4")}.Equal(merged))
	assert.Equal(t, "2", string(base["b"]), "merge must not modify the receiver")
}

func TestFieldsHelpers(t *testing.T) {
	f := Fields{"z": []byte("12"), "a": []byte("345")}
	assert.Equal(t, 5, f.Size())
	assert.Equal(t, []string{"a", "z"}, f.Names())

	c := f.Clone()
	c["a"][0] = 'x'
	assert.Equal(t, "345", string(f["a"]))
	assert.Nil(t, Fields(nil).Clone())

	assert.False(t, f.Equal(Fields{"a": []byte("345")}))
	assert.False(t, f.Equal(Fields{"a": []byte("345"), "y": []byte("12")}))
}

func TestProjection(t *testing.T) {
	f := Fields{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}

	assert.True(t, AllFields.All())
	assert.True(t, Project().All())
	assert.Equal(t, f, AllFields.Apply(f))

	p := Project("a", "c", "missing")
	assert.False(t, p.All())
	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("b"))
	assert.Equal(t, []string{"a", "c"}, p.Apply(f).Names())
	assert.Empty(t, p.Apply(Fields{"b": []byte("2")}))
}

func TestCheckRecordSize(t *testing.T) {
	f := Fields{"a": []byte("1234"), "b": []byte("56")}
	assert.NoError(t, checkRecordSize(f, 0))
	assert.NoError(t, checkRecordSize(f, 6))
	assert.ErrorIs(t, checkRecordSize(f, 5), ErrValueTooLarge)
}

func TestRecordKeyOrdering(t *testing.T) {
	keys := []string{"user9", "user10", "", "user1", "a", "user1\x00"}
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		encoded[i] = recordKey("usertable", k)
	}
	sort.Strings(keys)
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	prefix := tablePrefix("usertable")
	for i, k := range keys {
		require.True(t, bytes.HasPrefix(encoded[i], prefix))
		assert.Equal(t, k, string(encoded[i][len(prefix):]))
	}
}

func TestTablePrefixIsolation(t *testing.T) {
	// "ab" + key must never fall under the prefix of table "a"
	assert.False(t, bytes.HasPrefix(recordKey("ab", "c"), tablePrefix("a")))
	assert.False(t, bytes.HasPrefix(recordKey("a", "bc"), tablePrefix("ab")))
	assert.NotEqual(t, recordKey("a", "bc"), recordKey("ab", "c"))
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("ac"), prefixEnd([]byte("ab")))
	assert.Equal(t, []byte{0x01}, prefixEnd([]byte{0x00, 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
	assert.Nil(t, prefixEnd(nil))
}

package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	coreerrors "github.com/sufield/certifier/internal/core/errors"
)

func sampleStore(t *testing.T) *PolicyStore {
	t.Helper()
	s := NewPolicyStore(16)
	require.NoError(t, s.Insert("tag-1", EntryTypeString, []byte("some-data1")))
	require.NoError(t, s.Insert(TagPolicyCert, EntryTypeCert, []byte{0x30, 0x82, 0x01, 0x00}))
	require.NoError(t, s.Insert(TagAuthKey, EntryTypeKey, []byte("key-material")))
	require.NoError(t, s.Insert("empty", EntryTypeBinary, nil))
	return s
}

func TestPolicyStore_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) *PolicyStore
	}{
		{name: "empty default", store: func(*testing.T) *PolicyStore { return NewPolicyStore(0) }},
		{name: "populated", store: sampleStore},
		{
			name: "after delete",
			store: func(t *testing.T) *PolicyStore {
				s := sampleStore(t)
				require.NoError(t, s.Delete(1))
				return s
			},
		},
		{
			name: "full",
			store: func(t *testing.T) *PolicyStore {
				s := NewPolicyStore(3)
				for i := 0; i < 3; i++ {
					require.NoError(t, s.Insert(fmt.Sprintf("t%d", i), EntryTypeString, []byte{byte(i)}))
				}
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.store(t)
			b, err := orig.Serialize()
			require.NoError(t, err)

			got, err := DeserializePolicyStore(b)
			require.NoError(t, err)
			assert.Equal(t, orig.MaxEntries(), got.MaxEntries())
			assert.Equal(t, orig.NumEntries(), got.NumEntries())
			assert.Equal(t, orig.Entries(), got.Entries())

			again, err := got.Serialize()
			require.NoError(t, err)
			assert.Equal(t, b, again)
		})
	}
}

func TestDeserializePolicyStore_Malformed(t *testing.T) {
	valid, err := sampleStore(t).Serialize()
	require.NoError(t, err)

	header := append([]byte("CFPS"), StoreFormatV1)
	withFields := func(fields ...[]byte) []byte {
		b := append([]byte{}, header...)
		for _, f := range fields {
			b = append(b, f...)
		}
		return b
	}
	varintField := func(num protowire.Number, v uint64) []byte {
		b := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}
	entryField := func(tag string) []byte {
		e := appendEntry(nil, &PolicyStoreEntry{Tag: tag, Type: EntryTypeString})
		b := protowire.AppendTag(nil, fieldEntry, protowire.BytesType)
		return protowire.AppendBytes(b, e)
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "nil", input: nil},
		{name: "short", input: []byte("CFP")},
		{name: "bad magic", input: append([]byte("XXXX"), valid[4:]...)},
		{name: "future version", input: append(append([]byte("CFPS"), 2), valid[5:]...)},
		{name: "truncated", input: valid[:len(valid)-3]},
		{name: "missing header fields", input: withFields(entryField("a"))},
		{name: "zero capacity", input: withFields(varintField(fieldMaxEntries, 0), varintField(fieldNumEntries, 0))},
		{name: "count mismatch", input: withFields(varintField(fieldMaxEntries, 4), varintField(fieldNumEntries, 2), entryField("a"))},
		{
			name: "count over capacity",
			input: withFields(varintField(fieldMaxEntries, 1), varintField(fieldNumEntries, 2),
				entryField("a"), entryField("b")),
		},
		{name: "garbage tag", input: withFields([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DeserializePolicyStore(tt.input)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, coreerrors.ErrDecode), "got %v", err)
		})
	}
}

func TestDeserializePolicyStore_SkipsUnknownFields(t *testing.T) {
	b, err := sampleStore(t).Serialize()
	require.NoError(t, err)

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future extension")

	s, err := DeserializePolicyStore(b)
	require.NoError(t, err)
	assert.Equal(t, 4, s.NumEntries())
}

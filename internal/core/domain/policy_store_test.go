package domain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/sufield/certifier/internal/core/errors"
)

func TestNewPolicyStore(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{name: "explicit capacity", max: 8, want: 8},
		{name: "zero selects default", max: 0, want: DefaultMaxEntries},
		{name: "negative selects default", max: -3, want: DefaultMaxEntries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPolicyStore(tt.max)
			assert.Equal(t, tt.want, s.MaxEntries())
			assert.Equal(t, 0, s.NumEntries())
		})
	}
}

func TestPolicyStore_UpdateOrInsert(t *testing.T) {
	s := NewPolicyStore(DefaultMaxEntries)

	require.True(t, s.UpdateOrInsert("tag-1", EntryTypeString, []byte("some-data-1")))
	require.True(t, s.UpdateOrInsert("tag-2", EntryTypeString, []byte("some-data-2")))
	assert.Equal(t, 2, s.NumEntries())

	// Same (tag, type) updates in place.
	require.True(t, s.UpdateOrInsert("tag-1", EntryTypeString, []byte("replaced")))
	assert.Equal(t, 2, s.NumEntries())
	got, ok := s.Get("tag-1", EntryTypeString)
	require.True(t, ok)
	assert.Equal(t, []byte("replaced"), got)
	assert.Equal(t, 0, s.FindEntry("tag-1", EntryTypeString))

	// Same tag, different type is a distinct entry.
	require.True(t, s.UpdateOrInsert("tag-1", EntryTypeCert, []byte("cert-bytes")))
	assert.Equal(t, 3, s.NumEntries())
	assert.Equal(t, 2, s.FindEntry("tag-1", EntryTypeCert))
}

func TestPolicyStore_CountMatchesDistinctKeys(t *testing.T) {
	s := NewPolicyStore(50)
	keys := map[string]bool{}
	for i := 0; i < 120; i++ {
		tag := fmt.Sprintf("tag-%d", i%17)
		typ := []string{EntryTypeString, EntryTypeKey, EntryTypeCert}[i%3]
		require.True(t, s.UpdateOrInsert(tag, typ, []byte{byte(i)}))
		keys[tag+"\x00"+typ] = true
	}
	assert.Equal(t, len(keys), s.NumEntries())
}

func TestPolicyStore_Full(t *testing.T) {
	s := NewPolicyStore(2)
	require.NoError(t, s.Insert("a", EntryTypeString, []byte("1")))
	require.NoError(t, s.Insert("b", EntryTypeString, []byte("2")))

	err := s.Insert("c", EntryTypeString, []byte("3"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, coreerrors.ErrStoreFull))
	assert.False(t, s.UpdateOrInsert("c", EntryTypeString, []byte("3")))
	assert.Equal(t, 2, s.NumEntries())
	assert.Equal(t, NotFound, s.FindEntry("c", EntryTypeString))

	// Updating an existing key still works at capacity.
	assert.True(t, s.UpdateOrInsert("b", EntryTypeString, []byte("22")))
	got, _ := s.Get("b", EntryTypeString)
	assert.Equal(t, []byte("22"), got)
	got, _ = s.Get("a", EntryTypeString)
	assert.Equal(t, []byte("1"), got)
}

func TestPolicyStore_FindEntry(t *testing.T) {
	s := NewPolicyStore(DefaultMaxEntries)
	s.UpdateOrInsert("tag-1", "string", []byte("some-data1"))
	s.UpdateOrInsert("this-is-tag-2", "string", []byte("entry2-has-some-data2"))
	s.UpdateOrInsert("another-is-tag-3", "string", []byte("another-entry-has-some-data3"))

	require.Equal(t, 3, s.NumEntries())
	assert.Equal(t, 0, s.FindEntry("tag-1", "string"))
	assert.Equal(t, 1, s.FindEntry("this-is-tag-2", "string"))
	assert.Equal(t, 2, s.FindEntry("another-is-tag-3", "string"))
	assert.Less(t, s.FindEntry("tag-not-found", "type-not-found"), 0)
	assert.Less(t, s.FindEntry("tag-1", "cert"), 0)
}

func TestPolicyStore_DeleteEntry(t *testing.T) {
	s := NewPolicyStore(DefaultMaxEntries)
	s.UpdateOrInsert("tag-1", "string", []byte("some-data1"))
	s.UpdateOrInsert("this-is-tag-2", "string", []byte("entry2-has-some-data2"))

	found := s.FindEntry("tag-1", "string")
	require.True(t, s.DeleteEntry(found))

	n := s.NumEntries()
	require.Equal(t, 1, n)
	assert.False(t, s.DeleteEntry(n))
	assert.Equal(t, 1, s.NumEntries())
	assert.Equal(t, 0, s.FindEntry("this-is-tag-2", "string"))
}

func TestPolicyStore_DeleteCompacts(t *testing.T) {
	for del := 0; del < 5; del++ {
		t.Run(fmt.Sprintf("delete_%d", del), func(t *testing.T) {
			s := NewPolicyStore(10)
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Insert(fmt.Sprintf("t%d", i), EntryTypeString, []byte{byte(i)}))
			}
			require.NoError(t, s.Delete(del))
			require.Equal(t, 4, s.NumEntries())

			var want []string
			for i := 0; i < 5; i++ {
				if i != del {
					want = append(want, fmt.Sprintf("t%d", i))
				}
			}
			for i, e := range s.Entries() {
				assert.Equal(t, want[i], e.Tag)
				assert.Equal(t, i, s.FindEntry(e.Tag, e.Type))
			}
		})
	}
}

func TestPolicyStore_DeleteInvalidIndex(t *testing.T) {
	s := NewPolicyStore(4)
	require.NoError(t, s.Insert("a", EntryTypeString, nil))

	tests := []struct {
		name  string
		index int
		want  error
	}{
		{name: "negative", index: -1, want: coreerrors.ErrInvalidArgument},
		{name: "equal to count", index: 1, want: coreerrors.ErrIndexOutOfRange},
		{name: "beyond count", index: 7, want: coreerrors.ErrIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Delete(tt.index)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.False(t, s.DeleteEntry(tt.index))
			assert.Equal(t, 1, s.NumEntries())
		})
	}
}

func TestPolicyStore_EntriesAreCopies(t *testing.T) {
	s := NewPolicyStore(4)
	data := []byte("original")
	require.NoError(t, s.Insert("k", EntryTypeBinary, data))
	data[0] = 'X'

	e, ok := s.Entry(0)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), e.Data)

	e.Data[0] = 'Y'
	all := s.Entries()
	all[0].Data[1] = 'Z'

	got, _ := s.Get("k", EntryTypeBinary)
	assert.Equal(t, []byte("original"), got)

	_, ok = s.Entry(1)
	assert.False(t, ok)
}

func TestPolicyStore_Print(t *testing.T) {
	s := NewPolicyStore(DefaultMaxEntries)
	var buf bytes.Buffer
	s.Print(&buf)
	assert.Equal(t, fmt.Sprintf("Maximum Entries: %d, current entries: 0\n", DefaultMaxEntries), buf.String())

	s.UpdateOrInsert("tag-1", "string", []byte("ab"))
	s.UpdateOrInsert("big", "binary", bytes.Repeat([]byte{0xff}, 40))
	buf.Reset()
	s.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "current entries: 2")
	assert.Contains(t, out, "Tag: tag-1, Type: string, Value: 6162")
	assert.Contains(t, out, strings.Repeat("ff", 32)+"...")
}

func TestPolicyStore_ConcurrentInsert(t *testing.T) {
	s := NewPolicyStore(DefaultMaxEntries)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				s.UpdateOrInsert(fmt.Sprintf("g%d-%d", g, i), EntryTypeString, []byte("x"))
				s.FindEntry(fmt.Sprintf("g%d-%d", g, i), EntryTypeString)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 160, s.NumEntries())
}

func TestAdmissionCertTag(t *testing.T) {
	assert.Equal(t, "admission-cert/test-security-domain", AdmissionCertTag("test-security-domain"))
}

package domain

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufield/certifier/internal/core/errors"
)

// Serialized stores start with storeMagic followed by a format version byte.
// The remainder is a protobuf message:
//
//	message PolicyStore {
//	  uint64 max_entries = 1;
//	  uint64 num_entries = 2;
//	  repeated Entry entries = 3;
//	}
//	message Entry { string tag = 1; string type = 2; bytes data = 3; }
var storeMagic = []byte("CFPS")

// StoreFormatV1 is the only serialized format understood by this package.
const StoreFormatV1 byte = 1

// maxDecodedEntries bounds the capacity accepted from serialized input.
const maxDecodedEntries = 1 << 16

const (
	fieldMaxEntries protowire.Number = 1
	fieldNumEntries protowire.Number = 2
	fieldEntry      protowire.Number = 3

	fieldEntryTag  protowire.Number = 1
	fieldEntryType protowire.Number = 2
	fieldEntryData protowire.Number = 3
)

// Serialize encodes the store, including capacity and count.
func (s *PolicyStore) Serialize() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := make([]byte, 0, 64)
	b = append(b, storeMagic...)
	b = append(b, StoreFormatV1)
	b = protowire.AppendTag(b, fieldMaxEntries, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.maxEntries))
	b = protowire.AppendTag(b, fieldNumEntries, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(s.entries)))
	for i := range s.entries {
		b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
		b = protowire.AppendBytes(b, appendEntry(nil, &s.entries[i]))
	}
	return b, nil
}

func appendEntry(b []byte, e *PolicyStoreEntry) []byte {
	b = protowire.AppendTag(b, fieldEntryTag, protowire.BytesType)
	b = protowire.AppendString(b, e.Tag)
	b = protowire.AppendTag(b, fieldEntryType, protowire.BytesType)
	b = protowire.AppendString(b, e.Type)
	b = protowire.AppendTag(b, fieldEntryData, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Data)
	return b
}

// DeserializePolicyStore decodes a store produced by Serialize. Malformed or
// truncated input yields an ErrDecode error and no store.
func DeserializePolicyStore(data []byte) (*PolicyStore, error) {
	if len(data) < len(storeMagic)+1 {
		return nil, decodeError("input too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(storeMagic)], storeMagic) {
		return nil, decodeError("bad magic %q", data[:len(storeMagic)])
	}
	if v := data[len(storeMagic)]; v != StoreFormatV1 {
		return nil, decodeError("unsupported format version %d", v)
	}
	b := data[len(storeMagic)+1:]

	var (
		maxEntries, numEntries uint64
		haveMax, haveNum       bool
		entries                []PolicyStoreEntry
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeError("field tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldMaxEntries && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeError("max_entries: %v", protowire.ParseError(n))
			}
			maxEntries, haveMax = v, true
			b = b[n:]
		case num == fieldNumEntries && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, decodeError("num_entries: %v", protowire.ParseError(n))
			}
			numEntries, haveNum = v, true
			b = b[n:]
		case num == fieldEntry && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeError("entry %d: %v", len(entries), protowire.ParseError(n))
			}
			e, err := consumeEntry(raw)
			if err != nil {
				return nil, decodeError("entry %d: %v", len(entries), err)
			}
			if len(entries) >= maxDecodedEntries {
				return nil, decodeError("more than %d entries", maxDecodedEntries)
			}
			entries = append(entries, e)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeError("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch {
	case !haveMax || !haveNum:
		return nil, decodeError("missing header fields")
	case maxEntries == 0 || maxEntries > maxDecodedEntries:
		return nil, decodeError("invalid capacity %d", maxEntries)
	case numEntries != uint64(len(entries)):
		return nil, decodeError("count %d does not match %d encoded entries", numEntries, len(entries))
	case numEntries > maxEntries:
		return nil, decodeError("count %d exceeds capacity %d", numEntries, maxEntries)
	}

	s := NewPolicyStore(int(maxEntries))
	s.entries = append(s.entries, entries...)
	return s, nil
}

func consumeEntry(b []byte) (PolicyStoreEntry, error) {
	var e PolicyStoreEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldEntryTag:
			e.Tag = string(v)
		case fieldEntryType:
			e.Type = string(v)
		case fieldEntryData:
			e.Data = cloneData(v)
		}
	}
	return e, nil
}

func decodeError(format string, args ...any) error {
	return errors.NewDomainError(errors.ErrDecode, fmt.Errorf(format, args...))
}

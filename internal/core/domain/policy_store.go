// Package domain contains the policy store, certified domains and the
// initialization stages that trust decisions depend on.
package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/sufield/certifier/internal/core/errors"
)

// DefaultMaxEntries is the historical compiled-in capacity of a policy store.
const DefaultMaxEntries = 200

// NotFound is returned by FindEntry when no entry matches.
const NotFound = -1

// Well-known entry types. EntryTypePublicKey holds the public half of a key
// stored as EntryTypeKey under the same tag.
const (
	EntryTypeString    = "string"
	EntryTypeCert      = "cert"
	EntryTypeKey       = "key"
	EntryTypePublicKey = "public-key"
	EntryTypeBinary    = "binary"
)

// Well-known entry tags written by TrustData.
const (
	TagPolicyCert     = "policy-cert"
	TagAuthKey        = "auth-key"
	TagServiceKey     = "service-key"
	TagSymmetricKey   = "symmetric-key"
	TagPrimaryDomain  = "primary-domain"
	TagPurpose        = "purpose"
	TagEnclaveType    = "enclave-type"
	admissionCertBase = "admission-cert/"
)

// AdmissionCertTag returns the tag under which the admission certificate
// issued by domain is stored.
func AdmissionCertTag(domain string) string {
	return admissionCertBase + domain
}

// PolicyStoreEntry is a tagged, typed policy fact.
type PolicyStoreEntry struct {
	Tag  string
	Type string
	Data []byte
}

func (e PolicyStoreEntry) clone() PolicyStoreEntry {
	return PolicyStoreEntry{
		Tag:  e.Tag,
		Type: e.Type,
		Data: cloneData(e.Data),
	}
}

// cloneData copies data, normalizing empty payloads to nil.
func cloneData(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return bytes.Clone(data)
}

// PolicyStore is a fixed-capacity ordered container of policy entries.
// Entries are dense: deleting an entry shifts later entries down by one.
// All methods are safe for concurrent use.
type PolicyStore struct {
	mu         sync.RWMutex
	maxEntries int
	entries    []PolicyStoreEntry
}

// NewPolicyStore creates an empty store holding at most maxEntries entries.
// A non-positive maxEntries selects DefaultMaxEntries.
func NewPolicyStore(maxEntries int) *PolicyStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &PolicyStore{
		maxEntries: maxEntries,
		entries:    make([]PolicyStoreEntry, 0, min(maxEntries, 16)),
	}
}

// MaxEntries returns the fixed capacity of the store.
func (s *PolicyStore) MaxEntries() int {
	return s.maxEntries
}

// NumEntries returns the number of live entries.
func (s *PolicyStore) NumEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Insert replaces the data of the entry matching (tag, typ) or appends a new
// entry. It returns ErrStoreFull when the key is new and the store is at
// capacity; nothing is evicted.
func (s *PolicyStore) Insert(tag, typ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.find(tag, typ); i != NotFound {
		s.entries[i].Data = cloneData(data)
		return nil
	}
	if len(s.entries) >= s.maxEntries {
		return errors.NewDomainError(errors.ErrStoreFull,
			fmt.Errorf("capacity %d reached inserting %q/%q", s.maxEntries, tag, typ))
	}
	s.entries = append(s.entries, PolicyStoreEntry{Tag: tag, Type: typ, Data: cloneData(data)})
	return nil
}

// UpdateOrInsert is the boolean form of Insert.
func (s *PolicyStore) UpdateOrInsert(tag, typ string, data []byte) bool {
	return s.Insert(tag, typ, data) == nil
}

// FindEntry returns the index of the first entry matching (tag, typ), or
// NotFound.
func (s *PolicyStore) FindEntry(tag, typ string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(tag, typ)
}

func (s *PolicyStore) find(tag, typ string) int {
	for i := range s.entries {
		if s.entries[i].Tag == tag && s.entries[i].Type == typ {
			return i
		}
	}
	return NotFound
}

// Entry returns a copy of the entry at index.
func (s *PolicyStore) Entry(index int) (PolicyStoreEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.entries) {
		return PolicyStoreEntry{}, false
	}
	return s.entries[index].clone(), true
}

// Get returns a copy of the data stored under (tag, typ).
func (s *PolicyStore) Get(tag, typ string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.find(tag, typ)
	if i == NotFound {
		return nil, false
	}
	return cloneData(s.entries[i].Data), true
}

// Entries returns copies of all entries in index order.
func (s *PolicyStore) Entries() []PolicyStoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PolicyStoreEntry, len(s.entries))
	for i := range s.entries {
		out[i] = s.entries[i].clone()
	}
	return out
}

// Delete removes the entry at index and compacts the remaining entries.
func (s *PolicyStore) Delete(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 {
		return errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("negative index %d", index))
	}
	if index >= len(s.entries) {
		return errors.NewDomainError(errors.ErrIndexOutOfRange,
			fmt.Errorf("index %d, %d entries", index, len(s.entries)))
	}
	copy(s.entries[index:], s.entries[index+1:])
	s.entries[len(s.entries)-1] = PolicyStoreEntry{}
	s.entries = s.entries[:len(s.entries)-1]
	return nil
}

// DeleteEntry is the boolean form of Delete. It fails without mutation when
// index is negative or not below NumEntries.
func (s *PolicyStore) DeleteEntry(index int) bool {
	return s.Delete(index) == nil
}

// Print writes a human readable listing of the store to w.
func (s *PolicyStore) Print(w io.Writer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fmt.Fprintf(w, "Maximum Entries: %d, current entries: %d\n", s.maxEntries, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		fmt.Fprintf(w, "   %d. Tag: %s, Type: %s, Value: %s\n", i, e.Tag, e.Type, printableValue(e.Data))
	}
}

func printableValue(data []byte) string {
	const maxShown = 32
	if len(data) > maxShown {
		return hex.EncodeToString(data[:maxShown]) + "..."
	}
	return hex.EncodeToString(data)
}

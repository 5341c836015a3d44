package metadatastore

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is the OPSEC-mode MetadataStore backend: an in-process
// index that never touches disk and is discarded on process exit,
// mirroring credentialstore.MemoryStore's role for secret material.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]KeyRecord
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]KeyRecord)}
}

func (m *MemoryStore) Upsert(record KeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Fingerprint] = record
	return nil
}

func (m *MemoryStore) Get(fingerprint string) (KeyRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[fingerprint]
	return r, ok, nil
}

func (m *MemoryStore) List() ([]KeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]KeyRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) Delete(fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[fingerprint]
	delete(m.records, fingerprint)
	return ok, nil
}

func (m *MemoryStore) Search(query string) ([]KeyRecord, error) {
	needle := strings.ToLower(query)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []KeyRecord
	for _, r := range m.records {
		if strings.Contains(strings.ToLower(r.PrimaryUserID.Name), needle) ||
			strings.Contains(strings.ToLower(r.PrimaryUserID.Email), needle) ||
			strings.Contains(strings.ToLower(r.Fingerprint), needle) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) SetTrust(fingerprint string, level TrustLevel) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[fingerprint]
	if !ok {
		return false, nil
	}
	r.TrustLevel = level
	m.records[fingerprint] = r
	return true, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// sortRecords applies the own-keys-first, most-recently-added ordering
// used by both backends (spec.md §4.4).
func sortRecords(records []KeyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].IsOwnKey != records[j].IsOwnKey {
			return records[i].IsOwnKey
		}
		return records[i].AddedAt.After(records[j].AddedAt)
	})
}

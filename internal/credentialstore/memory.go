package credentialstore

import (
	"sync"

	"github.com/keychainpgp/core/internal/secretprotector"
)

// MemoryStore is the unconditional backend under OPSEC mode: nothing
// it holds ever touches disk, and everything is discarded on process
// exit (spec.md §4.3).
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]secretprotector.WrappedSecret
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]secretprotector.WrappedSecret)}
}

func (m *MemoryStore) Put(fingerprint string, secret secretprotector.WrappedSecret) error {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[fingerprint] = secret
	return nil
}

func (m *MemoryStore) Get(fingerprint string) (secretprotector.WrappedSecret, bool, error) {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return secretprotector.WrappedSecret{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.secrets[fingerprint]
	return ws, ok, nil
}

func (m *MemoryStore) Delete(fingerprint string) error {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, fingerprint)
	return nil
}

func (m *MemoryStore) ListFingerprints() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.secrets))
	for fp := range m.secrets {
		out = append(out, fp)
	}
	return out, nil
}

package keyringservice

import (
	"sync"
	"time"
)

type cacheEntry struct {
	passphrase []byte
	deadline   time.Time
}

// PassphraseCache holds recently-used passphrases so Decrypt does not
// re-prompt on every call. It is self-pruning: an expired entry is
// removed on the same access that observes its expiry, never by a
// background sweep (spec.md §4.5). Changing the TTL takes effect
// immediately for future Put calls; entries already stored keep the
// deadline they were given.
type PassphraseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewPassphraseCache returns a cache using ttl for every future entry.
func NewPassphraseCache(ttl time.Duration) *PassphraseCache {
	return &PassphraseCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

// SetTTL changes the TTL applied to entries inserted from now on.
func (c *PassphraseCache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Put stores passphrase for fingerprint under the cache's current TTL.
func (c *PassphraseCache) Put(fingerprint string, passphrase []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(passphrase))
	copy(cp, passphrase)
	c.entries[fingerprint] = cacheEntry{passphrase: cp, deadline: time.Now().Add(c.ttl)}
}

// Get returns the cached passphrase for fingerprint, if any and not
// expired. An expired entry is wiped and removed before Get reports a
// miss.
func (c *PassphraseCache) Get(fingerprint string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.deadline) {
		wipe(entry.passphrase)
		delete(c.entries, fingerprint)
		return nil, false
	}
	out := make([]byte, len(entry.passphrase))
	copy(out, entry.passphrase)
	return out, true
}

// Forget wipes and drops a single entry, used by Delete (spec.md
// §4.5's cache-entry-first deletion order).
func (c *PassphraseCache) Forget(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fingerprint]; ok {
		wipe(entry.passphrase)
		delete(c.entries, fingerprint)
	}
}

// Clear wipes and drops every entry, used on OPSEC panic-wipe.
func (c *PassphraseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, entry := range c.entries {
		wipe(entry.passphrase)
		delete(c.entries, fp)
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

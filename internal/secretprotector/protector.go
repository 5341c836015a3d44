// Package secretprotector owns the session-scoped wrapping key that
// mediates every access to secret key material at rest (spec.md §4.2).
package secretprotector

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/keychainpgp/core/internal/keychainerr"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // 96 bits, per spec.md §4.2
)

// WrappedSecret is secret material encrypted under the session
// wrapping key, safe to hand to a CredentialStore for at-rest storage.
type WrappedSecret struct {
	Fingerprint string
	Ciphertext  []byte
	Nonce       []byte
}

// SecretBuffer holds plaintext secret material for the duration of a
// single operation. Release must be called on every exit path (defer
// it immediately after a successful Unwrap); it zeroizes the backing
// array in place so no copy of the plaintext survives.
type SecretBuffer struct {
	mu   sync.Mutex
	data []byte
}

// Bytes returns the buffer's current contents. The returned slice
// aliases the buffer's backing array and must not be retained past
// Release.
func (b *SecretBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Release zeroizes the backing array. Safe to call more than once.
func (b *SecretBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.data {
		b.data[i] = 0
	}
	b.data = nil
}

func newSecretBuffer(data []byte) *SecretBuffer {
	return &SecretBuffer{data: data}
}

// Protector wraps and unwraps secret bytes under an ephemeral,
// session-scoped symmetric key. The key is never serialized and never
// leaves the Protector's object boundary in raw form.
type Protector struct {
	mu     sync.Mutex
	key    []byte // nil after wipe(); guarded by mu for poison-recovery
	logger *slog.Logger
}

// New creates a Protector with a freshly generated session wrapping
// key, sized for AES-256-GCM.
func New(logger *slog.Logger) (*Protector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to generate session wrapping key", err)
	}
	return &Protector{key: key, logger: logger}, nil
}

// Wrap encrypts secretBytes under the session wrapping key with a
// fresh random nonce. secretBytes is not modified or retained.
func (p *Protector) Wrap(fingerprint string, secretBytes []byte) (WrappedSecret, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		return WrappedSecret{}, keychainerr.New(keychainerr.SessionLost, "session wrapping key has been wiped")
	}

	aead, err := newAEAD(p.key)
	if err != nil {
		return WrappedSecret{}, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to construct AEAD", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return WrappedSecret{}, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to generate nonce", err)
	}

	ciphertext := aead.Seal(nil, nonce, secretBytes, []byte(fingerprint))
	p.logger.Debug("wrapped secret", "fingerprint", fingerprint)

	return WrappedSecret{Fingerprint: fingerprint, Ciphertext: ciphertext, Nonce: nonce}, nil
}

// Unwrap decrypts a WrappedSecret into a SecretBuffer the caller must
// Release. Any failure — wrong key (new session), tampered ciphertext,
// or a nonce/AAD mismatch — is reported as SessionLost, never a panic.
func (p *Protector) Unwrap(ws WrappedSecret) (*SecretBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		return nil, keychainerr.New(keychainerr.SessionLost, "session wrapping key has been wiped")
	}

	aead, err := newAEAD(p.key)
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to construct AEAD", err)
	}

	plaintext, err := aead.Open(nil, ws.Nonce, ws.Ciphertext, []byte(ws.Fingerprint))
	if err != nil {
		p.logger.Debug("unwrap failed", "fingerprint", ws.Fingerprint)
		return nil, keychainerr.New(keychainerr.SessionLost, "wrapped secret cannot be unwrapped in this session")
	}

	return newSecretBuffer(plaintext), nil
}

// Wipe replaces the session wrapping key with zeros. Every existing
// WrappedSecret becomes permanently un-unwrappable. Called on OPSEC
// panic-wipe and on normal session teardown.
func (p *Protector) Wipe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
	p.logger.Info("session wrapping key wiped")
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

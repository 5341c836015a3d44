package bundlecodec

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/keychainpgp/core/internal/keychainerr"
)

// envelopeVersion is the wire version of the {version|nonce|ciphertext}
// envelope from spec.md §6. version 1 fixes the Argon2id parameters
// and AEAD construction below; a future version would bump this byte
// and could change either.
const envelopeVersion byte = 1

// Argon2id parameters for envelope key derivation, chosen as a
// desktop-class memory-hard cost per version 1 (spec.md §4.6: "fixed
// per version, implied by the version byte").
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
)

// envelopeSalt is fixed rather than per-bundle: the wire format
// (spec.md §6) leaves no room for a salt field alongside the nonce,
// and the transfer passphrase's own 36 uniformly-sampled digits
// supply the derivation's entropy margin.
var envelopeSalt = []byte("keychainpgp-transfer-bundle-v1")

func deriveEnvelopeKey(passphrase string) []byte {
	return argon2.IDKey([]byte(passphrase), envelopeSalt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// encryptEnvelope seals plaintext under a key derived from passphrase
// and returns the binary envelope version‖nonce‖ciphertext.
func encryptEnvelope(plaintext []byte, passphrase string) ([]byte, error) {
	aead, err := chacha20poly1305.New(deriveEnvelopeKey(passphrase))
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to construct bundle AEAD", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to generate bundle nonce", err)
	}

	// The version byte is bound as AAD: it travels outside the
	// ciphertext (a version bump must stay readable before the key
	// derivation it selects is known) but must still be authenticated,
	// so a tampered version byte is caught as BadPassphrase rather than
	// silently accepted (spec.md §3 TransferBundle's aad field).
	ciphertext := aead.Seal(nil, nonce, plaintext, []byte{envelopeVersion})

	envelope := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	envelope = append(envelope, envelopeVersion)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, ciphertext...)
	return envelope, nil
}

// decryptEnvelope reverses encryptEnvelope. A wrong passphrase and a
// tampered ciphertext are indistinguishable by design: both surface
// as BadPassphrase without revealing any plaintext bytes (spec.md §8
// invariant #6).
func decryptEnvelope(envelope []byte, passphrase string) ([]byte, error) {
	if len(envelope) < 1+chacha20poly1305.NonceSize {
		return nil, keychainerr.New(keychainerr.TruncatedBundle, "envelope is shorter than its fixed header")
	}

	version := envelope[0]
	if version != envelopeVersion {
		return nil, keychainerr.Newf(keychainerr.UnsupportedVersion, "unsupported envelope version %d", version)
	}

	nonce := envelope[1 : 1+chacha20poly1305.NonceSize]
	ciphertext := envelope[1+chacha20poly1305.NonceSize:]

	aead, err := chacha20poly1305.New(deriveEnvelopeKey(passphrase))
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to construct bundle AEAD", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{version})
	if err != nil {
		return nil, keychainerr.New(keychainerr.BadPassphrase, "incorrect passphrase or corrupted bundle")
	}
	return plaintext, nil
}

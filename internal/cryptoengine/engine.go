package cryptoengine

// Engine abstracts every OpenPGP cryptographic operation the Keyring
// Core needs. Implementations must be pure functions over byte
// sequences and certificates: no I/O, no globals, no hidden caches
// (spec.md §4.1).
type Engine interface {
	// GenerateKeypair produces a fresh Ed25519/X25519 key pair bound
	// to userID, optionally protected by passphrase.
	GenerateKeypair(opts KeyGenOptions) (GeneratedKeyPair, error)

	// Encrypt encrypts plaintext for every recipient certificate.
	// Returns keychainerr.NoRecipients if recipientCerts is empty and
	// keychainerr.RecipientUnusable if a certificate lacks a usable
	// encryption subkey.
	Encrypt(plaintext []byte, recipientCerts [][]byte) ([]byte, error)

	// Decrypt decrypts an armored (or binary) OpenPGP message with
	// secretKey, optionally passphrase-protected. If the message
	// carries signatures, SignerInfo entries are returned alongside
	// the plaintext rather than silently discarded.
	Decrypt(ciphertext []byte, secretKey []byte, passphrase []byte) ([]byte, []SignerInfo, error)

	// Sign produces an armored signed message (or signature) over
	// data using secretKey.
	Sign(data []byte, secretKey []byte, passphrase []byte) ([]byte, error)

	// Verify checks a signed blob against every candidate certificate
	// in turn and reports the outcome for the first candidate whose
	// key issued the signature.
	Verify(signedBlob []byte, candidateCerts [][]byte) (VerifyResult, error)

	// Inspect parses a certificate (or a certificate carrying secret
	// material) and extracts its metadata. It performs no
	// cryptographic verification and has no side effects.
	Inspect(certOrBundle []byte) (CertInfo, error)

	// ExtractPublicCert strips any secret packets from certOrBundle and
	// returns the armored public certificate alone. Used whenever a
	// caller must persist or hand out public material derived from a
	// blob that also carries a secret key (spec.md §4.5 import/export).
	ExtractPublicCert(certOrBundle []byte) ([]byte, error)
}

// Config controls engine-wide policy. The zero value is the spec's
// default: armor metadata headers disabled for minimum metadata
// leakage (spec.md §4.1).
type Config struct {
	// IncludeArmorMetadata controls whether armor blocks carry
	// Version/Comment headers. Default: false.
	IncludeArmorMetadata bool
}

// Package cryptoengine implements the Keyring Core's stateless OpenPGP
// primitives: generate, encrypt, decrypt, sign, verify and inspect. It
// performs no I/O and holds no state beyond its immutable Config.
package cryptoengine

import "time"

// UserId is a display name / email pair extracted from, or supplied to,
// an OpenPGP certificate. Either field may be empty.
type UserId struct {
	Name  string
	Email string
}

// KeyAlgorithm identifies the algorithm family of a generated key.
type KeyAlgorithm string

const (
	// AlgorithmEd25519 is the only algorithm GenerateKeypair produces:
	// an Ed25519 primary signing key bound to an X25519 encryption
	// subkey, per spec.md §4.1.
	AlgorithmEd25519 KeyAlgorithm = "ed25519"
)

// SubkeyInfo describes one subkey of a certificate.
type SubkeyInfo struct {
	Fingerprint  string
	Capabilities []string // "sign", "encrypt", "certify", "authenticate"
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Revoked      bool
}

// CertInfo is the parsed view of a certificate returned by Inspect.
type CertInfo struct {
	Fingerprint string
	UserIDs     []UserId
	Algorithm   KeyAlgorithm
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	HasSecret   bool
	Subkeys     []SubkeyInfo
}

// GeneratedKeyPair is the byproduct of GenerateKeypair: the public
// certificate, the secret key material (armored), the primary key's
// fingerprint, and a revocation certificate the caller must persist or
// hand to the user (see SPEC_FULL.md's DATA MODEL supplement).
type GeneratedKeyPair struct {
	CertificateArmored []byte
	SecretKeyArmored   []byte
	RevocationArmored  []byte
	Fingerprint        string
}

// SignerInfo reports one signature found on a decrypted or verified
// message. Verified is false, rather than the signature being dropped,
// when the signer's certificate is unknown or the signature does not
// check out (spec.md §9 Open Questions).
type SignerInfo struct {
	Fingerprint string
	Verified    bool
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Valid            bool
	SignerFingerprint string
	VerifiedAt       time.Time
}

// KeyGenOptions configures GenerateKeypair.
type KeyGenOptions struct {
	UserID     UserId
	Passphrase []byte // nil for an unprotected key
	Expiration time.Duration
}

// DefaultExpiration is the two-year default certification lifetime
// mandated by spec.md §4.1.
const DefaultExpiration = 2 * 365 * 24 * time.Hour

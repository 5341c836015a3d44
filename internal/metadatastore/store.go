// Package metadatastore is the indexed repository of public
// certificates and per-key metadata (spec.md §4.4).
package metadatastore

import "time"

// TrustLevel is the user's attested confidence in a key.
type TrustLevel int

const (
	TrustUnknown TrustLevel = iota
	TrustImported
	TrustVerified
)

func (t TrustLevel) String() string {
	switch t {
	case TrustImported:
		return "Imported"
	case TrustVerified:
		return "Verified"
	default:
		return "Unknown"
	}
}

// KeyRecord is the persistent metadata row for one certificate
// (spec.md §3). IsOwnKey must remain in agreement with SecretMaterial
// presence in the CredentialStore; drift is a repair condition
// (spec.md §7, KeyringService.repair).
type KeyRecord struct {
	Fingerprint      string
	PrimaryUserID    UserIDView
	AllUserIDs       []UserIDView
	AlgorithmLabel   string
	CreatedAt        time.Time
	ExpiresAt        *time.Time
	TrustLevel       TrustLevel
	IsOwnKey         bool
	CertificateBytes []byte
	RevocationBytes  []byte // supplemental field, see SPEC_FULL.md DATA MODEL
	AddedAt          time.Time
}

// UserIDView mirrors cryptoengine.UserId without importing that
// package, keeping MetadataStore's dependency graph a leaf.
type UserIDView struct {
	Name  string
	Email string
}

// Store is the contract both MetadataStore backends implement.
type Store interface {
	Upsert(record KeyRecord) error
	Get(fingerprint string) (KeyRecord, bool, error)
	List() ([]KeyRecord, error)
	Delete(fingerprint string) (bool, error)
	Search(query string) ([]KeyRecord, error)
	SetTrust(fingerprint string, level TrustLevel) (bool, error)
	Close() error
}

// Package credentialstore provides pluggable at-rest storage for
// wrapped secret key material (spec.md §4.3). Every fingerprint
// crossing into a backend is validated hex-only before any path or
// key-name composition happens.
package credentialstore

import (
	"regexp"

	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// Store is the contract every backend implements. Only one backend is
// active per session; failover between them happens at initialization,
// never per-call (spec.md §4.3).
type Store interface {
	Put(fingerprint string, secret secretprotector.WrappedSecret) error
	Get(fingerprint string) (secretprotector.WrappedSecret, bool, error)
	Delete(fingerprint string) error
	ListFingerprints() ([]string, error)
}

var fingerprintPattern = regexp.MustCompile(`^[0-9A-F]{40}$|^[0-9A-F]{64}$`)

// ValidateFingerprint enforces spec.md §3's fingerprint shape before
// any backend composes a path or credential key from it.
func ValidateFingerprint(fingerprint string) error {
	if !fingerprintPattern.MatchString(fingerprint) {
		return keychainerr.Newf(keychainerr.InvalidIdentifier, "fingerprint %q is not valid hex", fingerprint)
	}
	return nil
}

// Package keyringservice is the orchestration layer implementing the
// public command surface (spec.md §4.5): it is the only component that
// talks to CryptoEngine, SecretProtector, CredentialStore and
// MetadataStore together.
package keyringservice

import (
	"time"

	"github.com/keychainpgp/core/internal/metadatastore"
)

// VerifyResult reports the outcome of Verify with a trust label
// cross-referenced against MetadataStore, per spec.md §4.5.
type VerifyResult struct {
	Valid             bool
	SignerFingerprint string
	TrustLevel        metadatastore.TrustLevel
	VerifiedAt        time.Time
}

// RepairReport summarizes the corrective actions taken by Repair.
type RepairReport struct {
	// DegradedFingerprints held is_own_key = true with no matching
	// WrappedSecret; they were downgraded to false.
	DegradedFingerprints []string
	// OrphanedSecretsRemoved held a WrappedSecret with no metadata row.
	OrphanedSecretsRemoved []string
}

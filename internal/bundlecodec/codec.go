// Package bundlecodec implements the animated-QR key transfer format
// used to move certificates and own-key secret material between
// devices (spec.md §4.6).
package bundlecodec

import (
	"encoding/base64"
	"log/slog"

	"github.com/google/uuid"

	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/keyringservice"
	"github.com/keychainpgp/core/internal/metadatastore"
)

// ExportResult is the outcome of Export: a transfer passphrase, its
// QR-part encoding, and a flat file-transport alternative.
type ExportResult struct {
	Passphrase string
	QRParts    []string
	FileBlob   []byte
}

// ImportResult is the outcome of Import.
type ImportResult struct {
	ImportedCount int
	SkippedCount  int
	Imported      []metadatastore.KeyRecord
}

// Codec builds and consumes transfer bundles against a KeyringService.
type Codec struct {
	keyring keyringservice.Service
	logger  *slog.Logger
}

// New returns a Codec backed by keyring.
func New(keyring keyringservice.Service, logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{keyring: keyring, logger: logger}
}

// Export bundles every known certificate — own-keys with their secret
// material, everything else public-only — under a freshly generated
// transfer passphrase.
func (c *Codec) Export() (ExportResult, error) {
	bundleID := uuid.NewString()
	records, err := c.keyring.List()
	if err != nil {
		return ExportResult{}, err
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entry := Entry{Fingerprint: record.Fingerprint, CertificateBytes: record.CertificateBytes}
		if record.IsOwnKey {
			secret, err := c.keyring.Export(record.Fingerprint, true)
			if err != nil {
				return ExportResult{}, err
			}
			entry.Kind = EntryWithSecret
			entry.SecretKeyArmored = secret
		} else {
			entry.Kind = EntryPublicOnly
		}
		entries = append(entries, entry)
	}

	passphrase, err := GeneratePassphrase()
	if err != nil {
		return ExportResult{}, err
	}

	envelope, err := encryptEnvelope(encodeEntries(entries), passphrase)
	if err != nil {
		return ExportResult{}, err
	}
	armored := base64.StdEncoding.EncodeToString(envelope)

	c.logger.Info("exported transfer bundle", "bundle_id", bundleID, "entry_count", len(entries))
	return ExportResult{
		Passphrase: passphrase,
		QRParts:    BuildQRParts(armored, 0),
		FileBlob:   []byte(armored),
	}, nil
}

// Import decrypts an armored bundle with passphrase and offers every
// entry to KeyringService.Import. Fingerprints already present are
// counted as skipped rather than re-imported destructively.
func (c *Codec) Import(armored string, passphrase string) (ImportResult, error) {
	bundleID := uuid.NewString()
	envelope, err := base64.StdEncoding.DecodeString(armored)
	if err != nil {
		return ImportResult{}, keychainerr.Wrap(keychainerr.CorruptFraming, "bundle is not valid base64", err)
	}

	plaintext, err := decryptEnvelope(envelope, passphrase)
	if err != nil {
		return ImportResult{}, err
	}

	entries, err := decodeEntries(plaintext)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	for _, entry := range entries {
		_, alreadyKnown, err := c.keyring.Get(entry.Fingerprint)
		if err != nil {
			return ImportResult{}, err
		}

		blob := entry.CertificateBytes
		if entry.Kind == EntryWithSecret {
			blob = entry.SecretKeyArmored
		}

		record, err := c.keyring.Import(blob)
		if err != nil {
			return ImportResult{}, err
		}

		if alreadyKnown {
			result.SkippedCount++
		} else {
			result.ImportedCount++
			result.Imported = append(result.Imported, record)
		}
	}

	c.logger.Info("imported transfer bundle", "bundle_id", bundleID, "imported", result.ImportedCount, "skipped", result.SkippedCount)
	return result, nil
}

package keyringservice

import (
	"log/slog"
	"time"

	"github.com/keychainpgp/core/internal/credentialstore"
	"github.com/keychainpgp/core/internal/cryptoengine"
	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/metadatastore"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// Service is the public command surface of the Keyring Core (spec.md
// §4.5): every operation an outer CLI or UI drives goes through it.
type Service interface {
	Generate(userID cryptoengine.UserId, passphrase []byte) (metadatastore.KeyRecord, error)
	Import(blob []byte) (metadatastore.KeyRecord, error)
	Export(fingerprint string, includeSecret bool) ([]byte, error)
	Decrypt(armored []byte, passphrase []byte) ([]byte, []cryptoengine.SignerInfo, error)
	Sign(fingerprint string, data []byte, passphrase []byte) ([]byte, error)
	Verify(armored []byte) (VerifyResult, error)
	SetTrust(fingerprint string, level metadatastore.TrustLevel) error
	Delete(fingerprint string) error
	Get(fingerprint string) (metadatastore.KeyRecord, bool, error)
	GetDetailed(fingerprint string) (cryptoengine.CertInfo, bool, error)
	List() ([]metadatastore.KeyRecord, error)
	Search(query string) ([]metadatastore.KeyRecord, error)
	Repair() (RepairReport, error)
	CachePassphrase(fingerprint string, passphrase []byte)
	ClearPassphraseCache()
}

// keyringService wires the four leaf components together. Modeled on
// the teacher's timerService: an interface plus an unexported struct
// holding its dependencies, constructed once by internal/app.New.
type keyringService struct {
	engine      cryptoengine.Engine
	protector   *secretprotector.Protector
	credentials credentialstore.Store
	metadata    metadatastore.Store
	cache       *PassphraseCache
	logger      *slog.Logger
}

// New wires a Service from its four leaf components.
func New(
	engine cryptoengine.Engine,
	protector *secretprotector.Protector,
	credentials credentialstore.Store,
	metadata metadatastore.Store,
	cache *PassphraseCache,
	logger *slog.Logger,
) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &keyringService{
		engine:      engine,
		protector:   protector,
		credentials: credentials,
		metadata:    metadata,
		cache:       cache,
		logger:      logger,
	}
}

func (s *keyringService) Generate(userID cryptoengine.UserId, passphrase []byte) (metadatastore.KeyRecord, error) {
	kp, err := s.engine.GenerateKeypair(cryptoengine.KeyGenOptions{
		UserID:     userID,
		Passphrase: passphrase,
		Expiration: cryptoengine.DefaultExpiration,
	})
	if err != nil {
		return metadatastore.KeyRecord{}, err
	}

	wrapped, err := s.protector.Wrap(kp.Fingerprint, kp.SecretKeyArmored)
	if err != nil {
		return metadatastore.KeyRecord{}, err
	}
	if err := s.credentials.Put(kp.Fingerprint, wrapped); err != nil {
		return metadatastore.KeyRecord{}, err
	}

	info, err := s.engine.Inspect(kp.CertificateArmored)
	if err != nil {
		s.rollbackSecret(kp.Fingerprint)
		return metadatastore.KeyRecord{}, err
	}

	record := recordFromCertInfo(info, kp.CertificateArmored, kp.RevocationArmored, true, time.Now())
	if err := s.metadata.Upsert(record); err != nil {
		s.rollbackSecret(kp.Fingerprint)
		return metadatastore.KeyRecord{}, err
	}

	s.logger.Info("generated key", "fingerprint", record.Fingerprint)
	return record, nil
}

func (s *keyringService) rollbackSecret(fingerprint string) {
	if err := s.credentials.Delete(fingerprint); err != nil {
		s.logger.Warn("rollback failed to delete secret material", "fingerprint", fingerprint)
	}
}

func (s *keyringService) Import(blob []byte) (metadatastore.KeyRecord, error) {
	info, err := s.engine.Inspect(blob)
	if err != nil {
		return metadatastore.KeyRecord{}, err
	}

	existing, found, err := s.metadata.Get(info.Fingerprint)
	if err != nil {
		return metadatastore.KeyRecord{}, err
	}

	certBytes := blob
	if info.HasSecret {
		pub, err := s.engine.ExtractPublicCert(blob)
		if err != nil {
			return metadatastore.KeyRecord{}, err
		}
		certBytes = pub

		wrapped, err := s.protector.Wrap(info.Fingerprint, blob)
		if err != nil {
			return metadatastore.KeyRecord{}, err
		}
		if err := s.credentials.Put(info.Fingerprint, wrapped); err != nil {
			return metadatastore.KeyRecord{}, err
		}
	}

	record := recordFromCertInfo(info, certBytes, nil, info.HasSecret, time.Now())
	if found {
		record.AllUserIDs = mergeUserIDViews(existing.AllUserIDs, record.AllUserIDs)
		if len(record.AllUserIDs) > 0 {
			record.PrimaryUserID = record.AllUserIDs[0]
		}
		record.ExpiresAt = laterOf(existing.ExpiresAt, record.ExpiresAt)
		record.CreatedAt = existing.CreatedAt
		record.AddedAt = existing.AddedAt
		record.IsOwnKey = existing.IsOwnKey || record.IsOwnKey // never downgrade
		record.TrustLevel = existing.TrustLevel
		if record.RevocationBytes == nil {
			record.RevocationBytes = existing.RevocationBytes
		}
	}

	if err := s.metadata.Upsert(record); err != nil {
		return metadatastore.KeyRecord{}, err
	}

	s.logger.Info("imported key", "fingerprint", record.Fingerprint, "merged", found)
	return record, nil
}

func (s *keyringService) Export(fingerprint string, includeSecret bool) ([]byte, error) {
	record, found, err := s.metadata.Get(fingerprint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, keychainerr.Newf(keychainerr.NotFound, "no key with fingerprint %q", fingerprint)
	}

	if !includeSecret {
		return record.CertificateBytes, nil
	}

	wrapped, found, err := s.credentials.Get(fingerprint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, keychainerr.Newf(keychainerr.NotFound, "no secret material stored for fingerprint %q", fingerprint)
	}

	buf, err := s.protector.Unwrap(wrapped)
	if err != nil {
		return nil, err
	}
	defer buf.Release()

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Decrypt tries every own key in turn. passphrase, if non-empty, is
// used for whichever candidate needs one and is cached under that
// candidate's fingerprint on success, so a caller that supplies it
// once via the command surface (spec.md §6 `decrypt|…,passphrase?`)
// does not have to supply it again within the session. When passphrase
// is empty, the PassphraseCache is consulted instead, per spec.md
// §4.5.
func (s *keyringService) Decrypt(armored []byte, passphrase []byte) ([]byte, []cryptoengine.SignerInfo, error) {
	records, err := s.metadata.List()
	if err != nil {
		return nil, nil, err
	}

	var lastErr error = keychainerr.New(keychainerr.NotFound, "no own key available to decrypt with")
	for _, record := range records {
		if !record.IsOwnKey {
			continue
		}

		wrapped, found, err := s.credentials.Get(record.Fingerprint)
		if err != nil || !found {
			continue
		}
		buf, err := s.protector.Unwrap(wrapped)
		if err != nil {
			lastErr = err
			continue
		}

		candidate := passphrase
		if len(candidate) == 0 {
			candidate, _ = s.cache.Get(record.Fingerprint)
		}
		plaintext, signers, decErr := s.engine.Decrypt(armored, buf.Bytes(), candidate)
		buf.Release()

		if decErr == nil {
			if len(passphrase) > 0 {
				s.cache.Put(record.Fingerprint, passphrase)
			}
			return plaintext, signers, nil
		}
		if keychainerr.KindOf(decErr) == keychainerr.WrongKey {
			lastErr = decErr
			continue
		}
		// PassphraseRequired, BadPassphrase, Tampered, etc. are surfaced
		// immediately rather than tried against the next candidate.
		return nil, nil, decErr
	}

	return nil, nil, lastErr
}

// Sign uses passphrase if non-empty, falling back to the
// PassphraseCache otherwise, and caches passphrase under fingerprint on
// success (spec.md §6 `sign|…,passphrase?`).
func (s *keyringService) Sign(fingerprint string, data []byte, passphrase []byte) ([]byte, error) {
	if fingerprint == "" {
		owned, err := s.ownKeys()
		if err != nil {
			return nil, err
		}
		switch len(owned) {
		case 0:
			return nil, keychainerr.New(keychainerr.NotFound, "no own key available to sign with")
		case 1:
			fingerprint = owned[0].Fingerprint
		default:
			return nil, keychainerr.New(keychainerr.InvalidIdentifier, "multiple own keys exist; a fingerprint must be specified")
		}
	}

	wrapped, found, err := s.credentials.Get(fingerprint)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, keychainerr.Newf(keychainerr.NotFound, "no secret material for fingerprint %q", fingerprint)
	}

	buf, err := s.protector.Unwrap(wrapped)
	if err != nil {
		return nil, err
	}
	defer buf.Release()

	candidate := passphrase
	if len(candidate) == 0 {
		candidate, _ = s.cache.Get(fingerprint)
	}
	signed, err := s.engine.Sign(data, buf.Bytes(), candidate)
	if err != nil {
		return nil, err
	}
	if len(passphrase) > 0 {
		s.cache.Put(fingerprint, passphrase)
	}
	return signed, nil
}

func (s *keyringService) Verify(armored []byte) (VerifyResult, error) {
	records, err := s.metadata.List()
	if err != nil {
		return VerifyResult{}, err
	}

	certs := make([][]byte, 0, len(records))
	for _, record := range records {
		certs = append(certs, record.CertificateBytes)
	}

	result, err := s.engine.Verify(armored, certs)
	if err != nil {
		return VerifyResult{}, err
	}

	out := VerifyResult{
		Valid:             result.Valid,
		SignerFingerprint: result.SignerFingerprint,
		VerifiedAt:        result.VerifiedAt,
	}
	if result.Valid {
		if signer, found, _ := s.metadata.Get(result.SignerFingerprint); found {
			out.TrustLevel = signer.TrustLevel
		}
	}
	return out, nil
}

func (s *keyringService) SetTrust(fingerprint string, level metadatastore.TrustLevel) error {
	ok, err := s.metadata.SetTrust(fingerprint, level)
	if err != nil {
		return err
	}
	if !ok {
		return keychainerr.Newf(keychainerr.NotFound, "no key with fingerprint %q", fingerprint)
	}
	return nil
}

// Delete removes fingerprint's passphrase cache entry, secret material
// and metadata row, in that order, per spec.md §4.5. It is idempotent.
func (s *keyringService) Delete(fingerprint string) error {
	s.cache.Forget(fingerprint)
	if err := s.credentials.Delete(fingerprint); err != nil {
		return err
	}
	if _, err := s.metadata.Delete(fingerprint); err != nil {
		return err
	}
	s.logger.Info("deleted key", "fingerprint", fingerprint)
	return nil
}

func (s *keyringService) Get(fingerprint string) (metadatastore.KeyRecord, bool, error) {
	return s.metadata.Get(fingerprint)
}

// GetDetailed is inspect_key_detailed (spec.md §6): it re-parses the
// stored certificate through the engine to surface the subkey-level
// view (per-subkey capabilities, expiry, revocation) that Get's flat
// KeyRecord does not carry. It is not cached; certificates are small
// and this is not a hot path.
func (s *keyringService) GetDetailed(fingerprint string) (cryptoengine.CertInfo, bool, error) {
	record, found, err := s.metadata.Get(fingerprint)
	if err != nil || !found {
		return cryptoengine.CertInfo{}, found, err
	}
	info, err := s.engine.Inspect(record.CertificateBytes)
	if err != nil {
		return cryptoengine.CertInfo{}, false, err
	}
	return info, true, nil
}

func (s *keyringService) List() ([]metadatastore.KeyRecord, error) {
	return s.metadata.List()
}

func (s *keyringService) Search(query string) ([]metadatastore.KeyRecord, error) {
	return s.metadata.Search(query)
}

func (s *keyringService) ownKeys() ([]metadatastore.KeyRecord, error) {
	records, err := s.metadata.List()
	if err != nil {
		return nil, err
	}
	var owned []metadatastore.KeyRecord
	for _, r := range records {
		if r.IsOwnKey {
			owned = append(owned, r)
		}
	}
	return owned, nil
}

// Repair reconciles MetadataStore and CredentialStore at startup
// (spec.md §4.5). Rows claiming ownership with no backing secret are
// degraded; secrets with no metadata row are removed. The orphaned-
// secret sweep is skipped against backends that cannot enumerate (the
// OS vault); degrading claimed-but-missing secrets still works there
// since it only needs a per-fingerprint Get.
func (s *keyringService) Repair() (RepairReport, error) {
	records, err := s.metadata.List()
	if err != nil {
		return RepairReport{}, err
	}

	var report RepairReport
	hasRecord := make(map[string]bool, len(records))
	for _, record := range records {
		hasRecord[record.Fingerprint] = true
		if !record.IsOwnKey {
			continue
		}
		_, found, err := s.credentials.Get(record.Fingerprint)
		if err != nil {
			return report, err
		}
		if !found {
			record.IsOwnKey = false
			if err := s.metadata.Upsert(record); err != nil {
				return report, err
			}
			report.DegradedFingerprints = append(report.DegradedFingerprints, record.Fingerprint)
			s.logger.Warn("degraded own-key record with no backing secret", "fingerprint", record.Fingerprint)
		}
	}

	secretFingerprints, err := s.credentials.ListFingerprints()
	if err != nil {
		if keychainerr.KindOf(err) == keychainerr.BackendUnavailable {
			s.logger.Debug("credential backend does not support enumeration, skipping orphaned-secret sweep")
			return report, nil
		}
		return report, err
	}
	for _, fp := range secretFingerprints {
		if !hasRecord[fp] {
			if err := s.credentials.Delete(fp); err != nil {
				return report, err
			}
			report.OrphanedSecretsRemoved = append(report.OrphanedSecretsRemoved, fp)
			s.logger.Warn("removed orphaned secret with no metadata row", "fingerprint", fp)
		}
	}

	return report, nil
}

func (s *keyringService) CachePassphrase(fingerprint string, passphrase []byte) {
	s.cache.Put(fingerprint, passphrase)
}

func (s *keyringService) ClearPassphraseCache() {
	s.cache.Clear()
}

func recordFromCertInfo(info cryptoengine.CertInfo, certBytes, revocationBytes []byte, isOwnKey bool, addedAt time.Time) metadatastore.KeyRecord {
	userIDs := make([]metadatastore.UserIDView, 0, len(info.UserIDs))
	for _, uid := range info.UserIDs {
		userIDs = append(userIDs, metadatastore.UserIDView{Name: uid.Name, Email: uid.Email})
	}
	var primary metadatastore.UserIDView
	if len(userIDs) > 0 {
		primary = userIDs[0]
	}
	return metadatastore.KeyRecord{
		Fingerprint:      info.Fingerprint,
		PrimaryUserID:    primary,
		AllUserIDs:       userIDs,
		AlgorithmLabel:   string(info.Algorithm),
		CreatedAt:        info.CreatedAt,
		ExpiresAt:        info.ExpiresAt,
		TrustLevel:       metadatastore.TrustUnknown,
		IsOwnKey:         isOwnKey,
		CertificateBytes: certBytes,
		RevocationBytes:  revocationBytes,
		AddedAt:          addedAt,
	}
}

func mergeUserIDViews(existing, incoming []metadatastore.UserIDView) []metadatastore.UserIDView {
	seen := make(map[metadatastore.UserIDView]bool, len(existing)+len(incoming))
	merged := make([]metadatastore.UserIDView, 0, len(existing)+len(incoming))
	for _, uid := range existing {
		if !seen[uid] {
			seen[uid] = true
			merged = append(merged, uid)
		}
	}
	for _, uid := range incoming {
		if !seen[uid] {
			seen[uid] = true
			merged = append(merged, uid)
		}
	}
	return merged
}

func laterOf(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.After(*a) {
		return b
	}
	return a
}

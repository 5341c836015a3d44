package keyringservice

import (
	"testing"
	"time"

	"github.com/keychainpgp/core/internal/credentialstore"
	"github.com/keychainpgp/core/internal/cryptoengine"
	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/metadatastore"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// fakeEngine is a deterministic stand-in for cryptoengine.Engine that
// avoids real cryptography, letting tests exercise orchestration
// logic (rollback, merge, repair, cache consultation) in isolation.
type fakeEngine struct {
	nextFingerprint string
	requirePassphrase map[string][]byte // fingerprint -> expected passphrase
}

func (f *fakeEngine) GenerateKeypair(opts cryptoengine.KeyGenOptions) (cryptoengine.GeneratedKeyPair, error) {
	fp := f.nextFingerprint
	return cryptoengine.GeneratedKeyPair{
		CertificateArmored: []byte("PUB:" + fp),
		SecretKeyArmored:   []byte("SEC:" + fp),
		RevocationArmored:  []byte("REV:" + fp),
		Fingerprint:        fp,
	}, nil
}

func (f *fakeEngine) Encrypt(plaintext []byte, recipientCerts [][]byte) ([]byte, error) {
	return append([]byte("ENC:"), plaintext...), nil
}

func (f *fakeEngine) Decrypt(ciphertext, secretKey, passphrase []byte) ([]byte, []cryptoengine.SignerInfo, error) {
	fp := fingerprintOfSecret(secretKey)
	if want, ok := f.requirePassphrase[fp]; ok {
		if len(passphrase) == 0 {
			return nil, nil, keychainerr.New(keychainerr.PassphraseRequired, "passphrase required")
		}
		if string(passphrase) != string(want) {
			return nil, nil, keychainerr.New(keychainerr.BadPassphrase, "incorrect passphrase")
		}
	}
	target := "ENC-FOR:" + fp
	if len(ciphertext) < len(target) || string(ciphertext[:len(target)]) != target {
		return nil, nil, keychainerr.New(keychainerr.WrongKey, "message not addressed to this key")
	}
	return ciphertext[len(target):], nil, nil
}

func (f *fakeEngine) Sign(data, secretKey, passphrase []byte) ([]byte, error) {
	fp := fingerprintOfSecret(secretKey)
	if want, ok := f.requirePassphrase[fp]; ok {
		if len(passphrase) == 0 {
			return nil, keychainerr.New(keychainerr.PassphraseRequired, "passphrase required")
		}
		if string(passphrase) != string(want) {
			return nil, keychainerr.New(keychainerr.BadPassphrase, "incorrect passphrase")
		}
	}
	return append([]byte("SIGNED:"), data...), nil
}

func (f *fakeEngine) Verify(signedBlob []byte, candidateCerts [][]byte) (cryptoengine.VerifyResult, error) {
	for _, cert := range candidateCerts {
		fp := fingerprintOfCert(cert)
		prefix := []byte("SIGNED-BY:" + fp + ":")
		if len(signedBlob) >= len(prefix) && string(signedBlob[:len(prefix)]) == string(prefix) {
			return cryptoengine.VerifyResult{Valid: true, SignerFingerprint: fp, VerifiedAt: time.Now()}, nil
		}
	}
	return cryptoengine.VerifyResult{Valid: false}, nil
}

func (f *fakeEngine) Inspect(certOrBundle []byte) (cryptoengine.CertInfo, error) {
	fp := fingerprintOfCert(certOrBundle)
	hasSecret := len(certOrBundle) >= 4 && string(certOrBundle[:4]) == "SEC:"
	return cryptoengine.CertInfo{
		Fingerprint: fp,
		UserIDs:     []cryptoengine.UserId{{Name: "Test User", Email: fp + "@example.com"}},
		Algorithm:   cryptoengine.AlgorithmEd25519,
		CreatedAt:   time.Now(),
		HasSecret:   hasSecret,
	}, nil
}

func (f *fakeEngine) ExtractPublicCert(certOrBundle []byte) ([]byte, error) {
	return []byte("PUB:" + fingerprintOfCert(certOrBundle)), nil
}

// fingerprintOfCert/fingerprintOfSecret extract the fake fingerprint
// embedded by GenerateKeypair's "PUB:"/"SEC:" prefixing convention.
func fingerprintOfCert(b []byte) string  { return stripPrefix(b) }
func fingerprintOfSecret(b []byte) string { return stripPrefix(b) }

func stripPrefix(b []byte) string {
	s := string(b)
	if len(s) > 4 && (s[:4] == "PUB:" || s[:4] == "SEC:") {
		return s[4:]
	}
	return s
}

func newTestService(t *testing.T, engine *fakeEngine) (*keyringService, credentialstore.Store, metadatastore.Store) {
	t.Helper()
	protector, err := secretprotector.New(nil)
	if err != nil {
		t.Fatalf("secretprotector.New() error = %v", err)
	}
	creds := credentialstore.NewMemoryStore()
	meta := metadatastore.NewMemoryStore()
	cache := NewPassphraseCache(time.Minute)
	svc := New(engine, protector, creds, meta, cache, nil).(*keyringService)
	return svc, creds, meta
}

func TestGenerateStoresSecretAndMetadata(t *testing.T) {
	engine := &fakeEngine{nextFingerprint: "AAAA00000000000000000000000000000000AAAA"}
	svc, creds, meta := newTestService(t, engine)

	record, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !record.IsOwnKey {
		t.Errorf("Generate() record.IsOwnKey = false, want true")
	}

	if _, found, _ := creds.Get(record.Fingerprint); !found {
		t.Errorf("expected secret material to be stored")
	}
	if _, found, _ := meta.Get(record.Fingerprint); !found {
		t.Errorf("expected metadata row to be stored")
	}
}

func TestDeleteIsIdempotentAndRemovesEverything(t *testing.T) {
	engine := &fakeEngine{nextFingerprint: "AAAA00000000000000000000000000000000AAAA"}
	svc, creds, meta := newTestService(t, engine)

	record, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	svc.CachePassphrase(record.Fingerprint, []byte("hunter2"))

	if err := svc.Delete(record.Fingerprint); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := creds.Get(record.Fingerprint); found {
		t.Errorf("expected secret material to be gone after Delete()")
	}
	if _, found, _ := meta.Get(record.Fingerprint); found {
		t.Errorf("expected metadata row to be gone after Delete()")
	}
	if _, ok := svc.cache.Get(record.Fingerprint); ok {
		t.Errorf("expected passphrase cache entry to be gone after Delete()")
	}

	// idempotent
	if err := svc.Delete(record.Fingerprint); err != nil {
		t.Errorf("second Delete() should be a no-op, got %v", err)
	}
}

func TestImportMergesUserIDsAndNeverDowngradesOwnership(t *testing.T) {
	engine := &fakeEngine{nextFingerprint: "BBBB00000000000000000000000000000000BBBB"}
	svc, _, meta := newTestService(t, engine)

	// First import: a public-only certificate.
	first, err := svc.Import([]byte("PUB:" + engine.nextFingerprint))
	if err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if first.IsOwnKey {
		t.Errorf("first Import() IsOwnKey = true, want false (no secret material)")
	}

	// Second import: the same fingerprint, now carrying a secret.
	second, err := svc.Import([]byte("SEC:" + engine.nextFingerprint))
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if !second.IsOwnKey {
		t.Errorf("second Import() IsOwnKey = false, want true (upgrade on secret presence)")
	}

	stored, found, _ := meta.Get(engine.nextFingerprint)
	if !found {
		t.Fatalf("expected merged record to persist")
	}
	if !stored.IsOwnKey {
		t.Errorf("persisted record IsOwnKey = false, want true")
	}
}

func TestDecryptConsultsCacheOnPassphraseRequired(t *testing.T) {
	fp := "CCCC00000000000000000000000000000000CCCC"
	engine := &fakeEngine{
		nextFingerprint:   fp,
		requirePassphrase: map[string][]byte{fp: []byte("correct horse")},
	}
	svc, _, _ := newTestService(t, engine)

	if _, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, []byte("correct horse")); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ciphertext := []byte("ENC-FOR:" + fp + "hello")

	// No cached passphrase: PassphraseRequired must be surfaced, not swallowed.
	if _, _, err := svc.Decrypt(ciphertext, nil); keychainerr.KindOf(err) != keychainerr.PassphraseRequired {
		t.Fatalf("Decrypt() without cached passphrase: kind = %v, want PassphraseRequired", keychainerr.KindOf(err))
	}

	svc.CachePassphrase(fp, []byte("correct horse"))
	plaintext, _, err := svc.Decrypt(ciphertext, nil)
	if err != nil {
		t.Fatalf("Decrypt() with cached passphrase error = %v", err)
	}
	if string(plaintext) != "hello" {
		t.Errorf("Decrypt() plaintext = %q, want %q", plaintext, "hello")
	}
}

// TestDecryptExplicitPassphrasePath exercises spec.md §8 S2 directly
// through the passphrase parameter rather than a pre-populated cache:
// wrong passphrase surfaces BadPassphrase, correct passphrase succeeds
// and is cached for the next call that omits it.
func TestDecryptExplicitPassphrasePath(t *testing.T) {
	fp := "CCCC11111111111111111111111111111111CCCC"
	engine := &fakeEngine{
		nextFingerprint:   fp,
		requirePassphrase: map[string][]byte{fp: []byte("pw-123")},
	}
	svc, _, _ := newTestService(t, engine)

	if _, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, []byte("pw-123")); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ciphertext := []byte("ENC-FOR:" + fp + "hello")

	if _, _, err := svc.Decrypt(ciphertext, []byte("wrong")); keychainerr.KindOf(err) != keychainerr.BadPassphrase {
		t.Fatalf("Decrypt() with wrong passphrase: kind = %v, want BadPassphrase", keychainerr.KindOf(err))
	}

	plaintext, _, err := svc.Decrypt(ciphertext, []byte("pw-123"))
	if err != nil {
		t.Fatalf("Decrypt() with correct passphrase error = %v", err)
	}
	if string(plaintext) != "hello" {
		t.Errorf("Decrypt() plaintext = %q, want %q", plaintext, "hello")
	}

	// The successful explicit passphrase is now cached: a bare retry
	// with no passphrase argument must also succeed.
	plaintext, _, err = svc.Decrypt(ciphertext, nil)
	if err != nil {
		t.Fatalf("Decrypt() after implicit caching error = %v", err)
	}
	if string(plaintext) != "hello" {
		t.Errorf("Decrypt() plaintext = %q, want %q", plaintext, "hello")
	}
}

func TestSignExplicitPassphrasePath(t *testing.T) {
	fp := "CCCC22222222222222222222222222222222CCCC"
	engine := &fakeEngine{
		nextFingerprint:   fp,
		requirePassphrase: map[string][]byte{fp: []byte("pw-123")},
	}
	svc, _, _ := newTestService(t, engine)

	if _, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, []byte("pw-123")); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := svc.Sign(fp, []byte("data"), nil); keychainerr.KindOf(err) != keychainerr.PassphraseRequired {
		t.Fatalf("Sign() without passphrase: kind = %v, want PassphraseRequired", keychainerr.KindOf(err))
	}
	if _, err := svc.Sign(fp, []byte("data"), []byte("wrong")); keychainerr.KindOf(err) != keychainerr.BadPassphrase {
		t.Fatalf("Sign() with wrong passphrase: kind = %v, want BadPassphrase", keychainerr.KindOf(err))
	}

	signed, err := svc.Sign(fp, []byte("data"), []byte("pw-123"))
	if err != nil {
		t.Fatalf("Sign() with correct passphrase error = %v", err)
	}
	if string(signed) != "SIGNED:data" {
		t.Errorf("Sign() = %q, want %q", signed, "SIGNED:data")
	}

	// Cached from the prior call.
	if _, err := svc.Sign(fp, []byte("more"), nil); err != nil {
		t.Errorf("Sign() after implicit caching error = %v", err)
	}
}

func TestRepairDegradesAndRemovesOrphans(t *testing.T) {
	engine := &fakeEngine{}
	svc, creds, meta := newTestService(t, engine)

	// A metadata row claiming ownership with no backing secret.
	if err := meta.Upsert(metadatastore.KeyRecord{
		Fingerprint: "DDDD00000000000000000000000000000000DDDD",
		IsOwnKey:    true,
		AddedAt:     time.Now(),
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	// A secret with no metadata row.
	if err := creds.Put("EEEE00000000000000000000000000000000EEEE", secretprotector.WrappedSecret{
		Fingerprint: "EEEE00000000000000000000000000000000EEEE",
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	report, err := svc.Repair()
	if err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	if len(report.DegradedFingerprints) != 1 || report.DegradedFingerprints[0] != "DDDD00000000000000000000000000000000DDDD" {
		t.Errorf("Repair() degraded = %v, want exactly the orphaned own-key row", report.DegradedFingerprints)
	}
	if len(report.OrphanedSecretsRemoved) != 1 || report.OrphanedSecretsRemoved[0] != "EEEE00000000000000000000000000000000EEEE" {
		t.Errorf("Repair() orphaned = %v, want exactly the metadata-less secret", report.OrphanedSecretsRemoved)
	}

	record, _, _ := meta.Get("DDDD00000000000000000000000000000000DDDD")
	if record.IsOwnKey {
		t.Errorf("degraded record still has IsOwnKey = true")
	}
	if _, found, _ := creds.Get("EEEE00000000000000000000000000000000EEEE"); found {
		t.Errorf("orphaned secret should have been deleted")
	}
}

func TestSignRequiresExplicitFingerprintWithMultipleOwnKeys(t *testing.T) {
	engine := &fakeEngine{}
	svc, _, meta := newTestService(t, engine)

	for _, fp := range []string{"1111111111111111111111111111111111AAAA", "2222222222222222222222222222222222BBBB"} {
		if err := meta.Upsert(metadatastore.KeyRecord{Fingerprint: fp, IsOwnKey: true, AddedAt: time.Now(), CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	if _, err := svc.Sign("", []byte("data"), nil); keychainerr.KindOf(err) != keychainerr.InvalidIdentifier {
		t.Errorf("Sign() with ambiguous own keys: kind = %v, want InvalidIdentifier", keychainerr.KindOf(err))
	}
}

func TestGetDetailedReturnsSubkeyView(t *testing.T) {
	fp := "FFFF00000000000000000000000000000000FFFF"
	engine := &fakeEngine{nextFingerprint: fp}
	svc, _, _ := newTestService(t, engine)

	if _, err := svc.Generate(cryptoengine.UserId{Name: "Ada", Email: "ada@example.com"}, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	info, found, err := svc.GetDetailed(fp)
	if err != nil {
		t.Fatalf("GetDetailed() error = %v", err)
	}
	if !found {
		t.Fatalf("GetDetailed() found = false, want true")
	}
	if info.Fingerprint != fp {
		t.Errorf("GetDetailed() fingerprint = %q, want %q", info.Fingerprint, fp)
	}

	if _, found, err := svc.GetDetailed("0000000000000000000000000000000000AAAA"); err != nil || found {
		t.Errorf("GetDetailed() for unknown fingerprint = (found=%v, err=%v), want (false, nil)", found, err)
	}
}

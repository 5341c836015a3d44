package app

import (
	"testing"
	"time"

	"github.com/keychainpgp/core/internal/config"
	"github.com/keychainpgp/core/internal/cryptoengine"
	"github.com/keychainpgp/core/internal/keychainerr"
)

func testConfig() *config.Config {
	return &config.Config{
		Opsec:              true,
		PassphraseCacheTTL: time.Minute,
		PreferOSVault:      false,
	}
}

func TestNewWithConfigWiresOpsecSession(t *testing.T) {
	a, err := NewWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	if !a.OpsecEnabled() {
		t.Fatalf("OpsecEnabled() = false, want true for an OPSEC config")
	}

	rec, err := a.Keyring.Generate(cryptoengine.UserId{Name: "Alice", Email: "alice@example.com"}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !rec.IsOwnKey {
		t.Errorf("Generate() record IsOwnKey = false, want true")
	}
}

func TestRecoverKeyringReportsNothingOnFreshSession(t *testing.T) {
	a, err := NewWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	if _, err := a.Keyring.Generate(cryptoengine.UserId{Name: "Bob", Email: "bob@example.com"}, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	report, err := a.RecoverKeyring()
	if err != nil {
		t.Fatalf("RecoverKeyring() error = %v", err)
	}
	if len(report.DegradedFingerprints) != 0 || len(report.OrphanedSecretsRemoved) != 0 {
		t.Errorf("RecoverKeyring() on a healthy session = %+v, want an empty report", report)
	}
}

func TestPanicWipeClearsCacheAndInvalidatesSecrets(t *testing.T) {
	a, err := NewWithConfig(testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	rec, err := a.Keyring.Generate(cryptoengine.UserId{Name: "Carol", Email: "carol@example.com"}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	a.Keyring.CachePassphrase(rec.Fingerprint, []byte("cached-passphrase"))

	a.PanicWipe()

	if _, ok := a.Cache.Get(rec.Fingerprint); ok {
		t.Errorf("passphrase cache entry for %s survived PanicWipe", rec.Fingerprint)
	}
	if _, found, _ := a.Credentials.Get(rec.Fingerprint); found {
		t.Errorf("secret for %s survived PanicWipe in OPSEC mode", rec.Fingerprint)
	}
	if _, err := a.Keyring.Export(rec.Fingerprint, true); err == nil {
		t.Errorf("Export(includeSecret) succeeded after PanicWipe, want an error")
	} else if kind := keychainerr.KindOf(err); kind != keychainerr.NotFound && kind != keychainerr.SessionLost {
		t.Errorf("Export() after PanicWipe: kind = %v, want NotFound or SessionLost", kind)
	}
}

func TestEnableDisableOpsecRoundTripsOwnKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Opsec = false
	dir := t.TempDir()
	cfg.DataDir = dir
	cfg.SecretsDir = dir + "/secrets"

	a, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	rec, err := a.Keyring.Generate(cryptoengine.UserId{Name: "Dave", Email: "dave@example.com"}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if err := a.EnableOpsec(); err != nil {
		t.Fatalf("EnableOpsec() error = %v", err)
	}
	if !a.OpsecEnabled() {
		t.Fatalf("OpsecEnabled() = false after EnableOpsec()")
	}
	if _, found, err := a.Keyring.Get(rec.Fingerprint); err != nil || !found {
		t.Fatalf("Get(%s) after EnableOpsec = (found=%v, err=%v), want a hit", rec.Fingerprint, found, err)
	}

	if err := a.DisableOpsec(); err != nil {
		t.Fatalf("DisableOpsec() error = %v", err)
	}
	if a.OpsecEnabled() {
		t.Fatalf("OpsecEnabled() = true after DisableOpsec()")
	}
	if _, found, err := a.Keyring.Get(rec.Fingerprint); err != nil || !found {
		t.Fatalf("Get(%s) after DisableOpsec = (found=%v, err=%v), want a hit from the durable store", rec.Fingerprint, found, err)
	}
}

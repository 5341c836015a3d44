package credentialstore

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// serviceName is the OS credential vault's service namespace, mirroring
// the teacher's crypto.ServiceName constant (internal/crypto/keyring.go).
const serviceName = "keychainpgp"

// OSVault stores WrappedSecrets in the platform credential vault
// (macOS Keychain, Windows Credential Manager, Secret Service on
// Linux) via github.com/zalando/go-keyring — the same library the
// teacher uses for its own database encryption key.
type OSVault struct {
	logger *slog.Logger
}

// NewOSVault returns a Store backed by the OS credential vault.
func NewOSVault(logger *slog.Logger) *OSVault {
	if logger == nil {
		logger = slog.Default()
	}
	return &OSVault{logger: logger}
}

// Available reports whether the OS vault can be written to, by
// performing a throwaway set/delete round trip. Used at session
// initialization to decide whether to fall back to the File backend.
func (v *OSVault) Available() bool {
	const probeKey = "__keychainpgp_availability_probe__"
	if err := keyring.Set(serviceName, probeKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, probeKey)
	return true
}

func (v *OSVault) Put(fingerprint string, secret secretprotector.WrappedSecret) error {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	if err := keyring.Set(serviceName, fingerprint, encodeWrapped(secret)); err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to store secret in OS vault", err)
	}
	v.logger.Debug("stored secret in OS vault", "fingerprint", fingerprint)
	return nil
}

func (v *OSVault) Get(fingerprint string) (secretprotector.WrappedSecret, bool, error) {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return secretprotector.WrappedSecret{}, false, err
	}
	encoded, err := keyring.Get(serviceName, fingerprint)
	if errors.Is(err, keyring.ErrNotFound) {
		return secretprotector.WrappedSecret{}, false, nil
	}
	if err != nil {
		return secretprotector.WrappedSecret{}, false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to read secret from OS vault", err)
	}
	ws, err := decodeWrapped(fingerprint, encoded)
	if err != nil {
		return secretprotector.WrappedSecret{}, false, err
	}
	return ws, true, nil
}

func (v *OSVault) Delete(fingerprint string) error {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return err
	}
	err := keyring.Delete(serviceName, fingerprint)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to delete secret from OS vault", err)
	}
	v.logger.Debug("deleted secret from OS vault", "fingerprint", fingerprint)
	return nil
}

// ListFingerprints is unsupported by the OS credential vault API
// (there is no vault-wide enumeration primitive across platforms); the
// KeyringService instead tracks fingerprints via MetadataStore and
// probes this Store with Get per candidate.
func (v *OSVault) ListFingerprints() ([]string, error) {
	return nil, keychainerr.New(keychainerr.BackendUnavailable, "OS vault does not support enumeration")
}

// encodeWrapped packs a WrappedSecret into the single string value the
// OS vault API stores, as base64(nonce) + ":" + base64(ciphertext).
func encodeWrapped(ws secretprotector.WrappedSecret) string {
	return base64.StdEncoding.EncodeToString(ws.Nonce) + ":" + base64.StdEncoding.EncodeToString(ws.Ciphertext)
}

func decodeWrapped(fingerprint, encoded string) (secretprotector.WrappedSecret, error) {
	parts := strings.SplitN(encoded, ":", 2)
	if len(parts) != 2 {
		return secretprotector.WrappedSecret{}, keychainerr.New(keychainerr.CorruptFraming, "malformed OS vault entry")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return secretprotector.WrappedSecret{}, keychainerr.Wrap(keychainerr.CorruptFraming, "malformed OS vault nonce", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return secretprotector.WrappedSecret{}, keychainerr.Wrap(keychainerr.CorruptFraming, "malformed OS vault ciphertext", err)
	}
	return secretprotector.WrappedSecret{Fingerprint: fingerprint, Nonce: nonce, Ciphertext: ciphertext}, nil
}

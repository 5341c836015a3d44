package credentialstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// FileStore is the fallback backend chosen when no OS vault is
// available or the vault errors on write. Files live at
// {secretsDir}/{fingerprint}.key and are written atomically via a
// temp-file-plus-rename, matching the teacher's Config.Save pattern
// (internal/config/config.go) generalized to guarantee atomicity.
type FileStore struct {
	secretsDir string
	logger     *slog.Logger
}

// NewFileStore returns a Store rooted at secretsDir, creating the
// directory with owner-only permissions if it does not exist.
func NewFileStore(secretsDir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(secretsDir, 0700); err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to create secrets directory", err)
	}
	return &FileStore{secretsDir: secretsDir, logger: logger}, nil
}

// path composes {secretsDir}/{fingerprint}.key and rejects any
// fingerprint that would resolve outside secretsDir.
func (f *FileStore) path(fingerprint string) (string, error) {
	if err := ValidateFingerprint(fingerprint); err != nil {
		return "", err
	}
	p := filepath.Join(f.secretsDir, fingerprint+".key")
	rel, err := filepath.Rel(f.secretsDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", keychainerr.Newf(keychainerr.InvalidIdentifier, "fingerprint %q resolves outside secrets directory", fingerprint)
	}
	return p, nil
}

func (f *FileStore) Put(fingerprint string, secret secretprotector.WrappedSecret) error {
	path, err := f.path(fingerprint)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.secretsDir, ".tmp-*")
	if err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to set file permissions", err)
	}
	if _, err := tmp.WriteString(encodeWrapped(secret)); err != nil {
		tmp.Close()
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to write secret file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to sync secret file", err)
	}
	if err := tmp.Close(); err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to close temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to atomically install secret file", err)
	}

	f.logger.Debug("stored secret in file backend", "fingerprint", fingerprint)
	return nil
}

func (f *FileStore) Get(fingerprint string) (secretprotector.WrappedSecret, bool, error) {
	path, err := f.path(fingerprint)
	if err != nil {
		return secretprotector.WrappedSecret{}, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return secretprotector.WrappedSecret{}, false, nil
	}
	if err != nil {
		return secretprotector.WrappedSecret{}, false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to read secret file", err)
	}
	ws, err := decodeWrapped(fingerprint, string(data))
	if err != nil {
		return secretprotector.WrappedSecret{}, false, err
	}
	return ws, true, nil
}

// Delete overwrites the file's contents with zeros before unlinking
// it (best-effort; flash-translation layers may retain a copy of the
// pre-overwrite block, per spec.md §4.3).
func (f *FileStore) Delete(fingerprint string) error {
	path, err := f.path(fingerprint)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to stat secret file", err)
	}
	if zeroErr := zeroFile(path, info.Size()); zeroErr != nil {
		f.logger.Debug("best-effort zeroization failed", "fingerprint", fingerprint)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to delete secret file", err)
	}
	f.logger.Debug("deleted secret from file backend", "fingerprint", fingerprint)
	return nil
}

func zeroFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	zeros := make([]byte, size)
	_, err = f.WriteAt(zeros, 0)
	return err
}

func (f *FileStore) ListFingerprints() ([]string, error) {
	entries, err := os.ReadDir(f.secretsDir)
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to list secrets directory", err)
	}
	var fingerprints []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".key") {
			continue
		}
		fp := strings.TrimSuffix(name, ".key")
		if ValidateFingerprint(fp) == nil {
			fingerprints = append(fingerprints, fp)
		}
	}
	return fingerprints, nil
}

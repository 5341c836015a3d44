package credentialstore

import (
	"path/filepath"
	"testing"

	"github.com/keychainpgp/core/internal/keychainerr"
	"github.com/keychainpgp/core/internal/secretprotector"
)

const validFP = "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "secrets"), nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ws := secretprotector.WrappedSecret{Fingerprint: validFP, Nonce: []byte("nonce-bytes!"), Ciphertext: []byte("ciphertext-bytes")}
			if err := store.Put(validFP, ws); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, ok, err := store.Get(validFP)
			if err != nil || !ok {
				t.Fatalf("Get() = (%v, %v, %v), want a hit", got, ok, err)
			}
			if string(got.Nonce) != string(ws.Nonce) || string(got.Ciphertext) != string(ws.Ciphertext) {
				t.Errorf("round trip mismatch: got %+v, want %+v", got, ws)
			}

			if err := store.Delete(validFP); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := store.Get(validFP); ok {
				t.Errorf("expected Get() to miss after Delete()")
			}
			// idempotent delete
			if err := store.Delete(validFP); err != nil {
				t.Errorf("second Delete() should be a no-op, got %v", err)
			}
		})
	}
}

func TestInvalidFingerprintRejected(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			bad := "not-hex-../../etc/passwd"
			ws := secretprotector.WrappedSecret{Fingerprint: bad}
			if err := store.Put(bad, ws); keychainerr.KindOf(err) != keychainerr.InvalidIdentifier {
				t.Errorf("expected InvalidIdentifier, got %v", err)
			}
			if _, _, err := store.Get(bad); keychainerr.KindOf(err) != keychainerr.InvalidIdentifier {
				t.Errorf("expected InvalidIdentifier, got %v", err)
			}
		})
	}
}

func TestFileStorePathEscapeRejected(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := fs.path("../../../etc/passwd"); err == nil {
		t.Errorf("expected path escape to be rejected")
	}
}

func TestListFingerprints(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ws := secretprotector.WrappedSecret{Fingerprint: validFP}
			if err := store.Put(validFP, ws); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			fps, err := store.ListFingerprints()
			if err != nil {
				t.Fatalf("ListFingerprints() error = %v", err)
			}
			if len(fps) != 1 || fps[0] != validFP {
				t.Errorf("ListFingerprints() = %v, want [%s]", fps, validFP)
			}
		})
	}
}

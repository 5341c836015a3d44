package secretprotector

import "testing"

// Invariant #2 — round trip identity.
func TestWrapUnwrapRoundTrip(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	secret := []byte("super secret key material")
	ws, err := p.Wrap("AAAABBBBCCCCDDDD", secret)
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	buf, err := p.Unwrap(ws)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	defer buf.Release()

	if string(buf.Bytes()) != string(secret) {
		t.Errorf("round trip mismatch: got %q, want %q", buf.Bytes(), secret)
	}
}

func TestNonceIsRandomPerWrap(t *testing.T) {
	p, _ := New(nil)
	a, _ := p.Wrap("FP", []byte("data"))
	b, _ := p.Wrap("FP", []byte("data"))
	if string(a.Nonce) == string(b.Nonce) {
		t.Errorf("expected distinct nonces across wraps")
	}
	if string(a.Ciphertext) == string(b.Ciphertext) {
		t.Errorf("expected distinct ciphertexts given distinct nonces")
	}
}

// Invariant #3 — session-bound confidentiality: a fresh Protector
// (simulating a new session) cannot unwrap a WrappedSecret from a
// prior one.
func TestUnwrapFailsAfterNewSession(t *testing.T) {
	p1, _ := New(nil)
	ws, err := p1.Wrap("FP", []byte("secret"))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	p2, _ := New(nil)
	if _, err := p2.Unwrap(ws); err == nil {
		t.Errorf("expected Unwrap to fail across sessions")
	}
}

// Invariant #12 — Wipe leaves subsequent operations reporting SessionLost.
func TestWipeInvalidatesEverything(t *testing.T) {
	p, _ := New(nil)
	ws, err := p.Wrap("FP", []byte("secret"))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	p.Wipe()

	if _, err := p.Unwrap(ws); err == nil {
		t.Errorf("expected Unwrap to fail after Wipe")
	}
	if _, err := p.Wrap("FP2", []byte("data")); err == nil {
		t.Errorf("expected Wrap to fail after Wipe")
	}
}

func TestReleaseZeroizesAndIsIdempotent(t *testing.T) {
	p, _ := New(nil)
	ws, _ := p.Wrap("FP", []byte("secret"))
	buf, err := p.Unwrap(ws)
	if err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}

	buf.Release()
	for _, b := range buf.Bytes() {
		if b != 0 {
			t.Fatalf("expected zeroized buffer after Release")
		}
	}
	buf.Release() // must not panic
}

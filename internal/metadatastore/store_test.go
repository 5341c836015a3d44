package metadatastore

import (
	"path/filepath"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleRecord(fingerprint string, own bool, addedAt time.Time) KeyRecord {
	return KeyRecord{
		Fingerprint:      fingerprint,
		PrimaryUserID:    UserIDView{Name: "Ada Lovelace", Email: "ada@example.com"},
		AllUserIDs:       []UserIDView{{Name: "Ada Lovelace", Email: "ada@example.com"}},
		AlgorithmLabel:   "Ed25519",
		CreatedAt:        addedAt,
		TrustLevel:       TrustUnknown,
		IsOwnKey:         own,
		CertificateBytes: []byte("cert-bytes"),
		AddedAt:          addedAt,
	}
}

func TestUpsertGetDeleteRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			fp := "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
			r := sampleRecord(fp, true, time.Now().UTC().Truncate(time.Second))

			if err := store.Upsert(r); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			got, ok, err := store.Get(fp)
			if err != nil || !ok {
				t.Fatalf("Get() = (%+v, %v, %v), want a hit", got, ok, err)
			}
			if got.PrimaryUserID.Email != r.PrimaryUserID.Email {
				t.Errorf("Get() email = %q, want %q", got.PrimaryUserID.Email, r.PrimaryUserID.Email)
			}
			if len(got.AllUserIDs) != 1 {
				t.Errorf("Get() AllUserIDs = %v, want 1 entry", got.AllUserIDs)
			}
			if !got.IsOwnKey {
				t.Errorf("Get() IsOwnKey = false, want true")
			}

			deleted, err := store.Delete(fp)
			if err != nil || !deleted {
				t.Fatalf("Delete() = (%v, %v), want (true, nil)", deleted, err)
			}
			if _, ok, _ := store.Get(fp); ok {
				t.Errorf("expected Get() to miss after Delete()")
			}
			// idempotent delete
			if deleted, err := store.Delete(fp); err != nil || deleted {
				t.Errorf("second Delete() = (%v, %v), want (false, nil)", deleted, err)
			}
		})
	}
}

func TestUpsertIsIdempotentPerFingerprint(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			fp := "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
			r := sampleRecord(fp, false, time.Now().UTC().Truncate(time.Second))
			if err := store.Upsert(r); err != nil {
				t.Fatalf("first Upsert() error = %v", err)
			}
			r.TrustLevel = TrustVerified
			if err := store.Upsert(r); err != nil {
				t.Fatalf("second Upsert() error = %v", err)
			}

			all, err := store.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(all) != 1 {
				t.Fatalf("List() returned %d records, want exactly one row per fingerprint", len(all))
			}
			if all[0].TrustLevel != TrustVerified {
				t.Errorf("List()[0].TrustLevel = %v, want TrustVerified", all[0].TrustLevel)
			}
		})
	}
}

func TestListOrdersOwnKeysFirstThenMostRecent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			older := sampleRecord("1111111111111111111111111111111111AAAA", false, now.Add(-time.Hour))
			newer := sampleRecord("2222222222222222222222222222222222BBBB", false, now)
			own := sampleRecord("3333333333333333333333333333333333CCCC", true, now.Add(-2*time.Hour))

			for _, r := range []KeyRecord{older, newer, own} {
				if err := store.Upsert(r); err != nil {
					t.Fatalf("Upsert() error = %v", err)
				}
			}

			list, err := store.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("List() returned %d records, want 3", len(list))
			}
			if list[0].Fingerprint != own.Fingerprint {
				t.Errorf("List()[0] = %s, want own key %s first", list[0].Fingerprint, own.Fingerprint)
			}
			if list[1].Fingerprint != newer.Fingerprint || list[2].Fingerprint != older.Fingerprint {
				t.Errorf("List() non-own ordering = [%s, %s], want most-recent-first [%s, %s]",
					list[1].Fingerprint, list[2].Fingerprint, newer.Fingerprint, older.Fingerprint)
			}
		})
	}
}

func TestSearchMatchesNameEmailOrFingerprint(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			fp := "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
			if err := store.Upsert(sampleRecord(fp, false, time.Now().UTC())); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}

			for _, query := range []string{"ada", "EXAMPLE.COM", "bbbbcccc", fp[:8]} {
				results, err := store.Search(query)
				if err != nil {
					t.Fatalf("Search(%q) error = %v", query, err)
				}
				if len(results) != 1 || results[0].Fingerprint != fp {
					t.Errorf("Search(%q) = %v, want a single match on %s", query, results, fp)
				}
			}

			results, err := store.Search("nonexistent-needle")
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(results) != 0 {
				t.Errorf("Search(nonexistent) = %v, want no results", results)
			}
		})
	}
}

func TestSetTrust(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			fp := "AAAABBBBCCCCDDDDEEEEFFFF0000111122223333"
			if err := store.Upsert(sampleRecord(fp, false, time.Now().UTC())); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			ok, err := store.SetTrust(fp, TrustVerified)
			if err != nil || !ok {
				t.Fatalf("SetTrust() = (%v, %v), want (true, nil)", ok, err)
			}
			got, _, _ := store.Get(fp)
			if got.TrustLevel != TrustVerified {
				t.Errorf("TrustLevel after SetTrust() = %v, want TrustVerified", got.TrustLevel)
			}

			ok, err = store.SetTrust("unknown-fingerprint", TrustVerified)
			if err != nil || ok {
				t.Errorf("SetTrust() on unknown fingerprint = (%v, %v), want (false, nil)", ok, err)
			}
		})
	}
}

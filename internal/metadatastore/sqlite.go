package metadatastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keychainpgp/core/internal/keychainerr"
)

// timeLayout mirrors the teacher's repository.timeLayout
// (internal/repository/helpers.go): RFC3339 text columns.
const timeLayout = time.RFC3339

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SQLiteStore is the transactional on-disk MetadataStore backend used
// in normal (non-OPSEC) mode. It is a pure-Go SQLite implementation
// (modernc.org/sqlite, sourced from the retrieval pack's ToeiRei-
// Keymaster dependency set) so the module never needs CGO.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the metadata database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to create metadata directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to open metadata store", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to enable WAL mode", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS keys (
			fingerprint       TEXT PRIMARY KEY NOT NULL,
			primary_name      TEXT,
			primary_email     TEXT,
			all_user_ids      TEXT NOT NULL,
			algorithm_label   TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			expires_at        TEXT,
			trust_level       INTEGER NOT NULL DEFAULT 0,
			is_own_key        INTEGER NOT NULL DEFAULT 0,
			certificate_bytes BLOB NOT NULL,
			revocation_bytes  BLOB,
			added_at          TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_keys_email ON keys(primary_email);
		CREATE INDEX IF NOT EXISTS idx_keys_name  ON keys(primary_name);
	`)
	if err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to migrate metadata schema", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(r KeyRecord) error {
	userIDs, err := json.Marshal(r.AllUserIDs)
	if err != nil {
		return keychainerr.Wrap(keychainerr.MalformedCertificate, "failed to encode user ids", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO keys (fingerprint, primary_name, primary_email, all_user_ids, algorithm_label,
			created_at, expires_at, trust_level, is_own_key, certificate_bytes, revocation_bytes, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			primary_name = excluded.primary_name,
			primary_email = excluded.primary_email,
			all_user_ids = excluded.all_user_ids,
			algorithm_label = excluded.algorithm_label,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			trust_level = excluded.trust_level,
			is_own_key = excluded.is_own_key,
			certificate_bytes = excluded.certificate_bytes,
			revocation_bytes = excluded.revocation_bytes
	`,
		r.Fingerprint, r.PrimaryUserID.Name, r.PrimaryUserID.Email, string(userIDs), r.AlgorithmLabel,
		r.CreatedAt.Format(timeLayout), formatTimePtr(r.ExpiresAt), int(r.TrustLevel), boolToInt(r.IsOwnKey),
		r.CertificateBytes, r.RevocationBytes, r.AddedAt.Format(timeLayout),
	)
	if err != nil {
		return keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to upsert key record", err)
	}
	return nil
}

const selectColumns = `fingerprint, primary_name, primary_email, all_user_ids, algorithm_label,
	created_at, expires_at, trust_level, is_own_key, certificate_bytes, revocation_bytes, added_at`

func scanRecord(row interface {
	Scan(dest ...any) error
}) (KeyRecord, error) {
	var r KeyRecord
	var name, email, userIDsJSON sql.NullString
	var createdAt, addedAt string
	var expiresAt sql.NullString
	var trust, isOwnKey int
	var revocation []byte

	err := row.Scan(&r.Fingerprint, &name, &email, &userIDsJSON, &r.AlgorithmLabel,
		&createdAt, &expiresAt, &trust, &isOwnKey, &r.CertificateBytes, &revocation, &addedAt)
	if err != nil {
		return KeyRecord{}, err
	}

	r.PrimaryUserID = UserIDView{Name: name.String, Email: email.String}
	r.TrustLevel = TrustLevel(trust)
	r.IsOwnKey = isOwnKey != 0
	r.RevocationBytes = revocation

	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return KeyRecord{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if r.AddedAt, err = time.Parse(timeLayout, addedAt); err != nil {
		return KeyRecord{}, fmt.Errorf("failed to parse added_at: %w", err)
	}
	if r.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return KeyRecord{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if userIDsJSON.Valid && userIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(userIDsJSON.String), &r.AllUserIDs); err != nil {
			return KeyRecord{}, fmt.Errorf("failed to decode user ids: %w", err)
		}
	}

	return r, nil
}

func (s *SQLiteStore) Get(fingerprint string) (KeyRecord, bool, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM keys WHERE fingerprint = ?`, fingerprint)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyRecord{}, false, nil
	}
	if err != nil {
		return KeyRecord{}, false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to get key record", err)
	}
	return r, true, nil
}

func (s *SQLiteStore) List() ([]KeyRecord, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM keys ORDER BY is_own_key DESC, added_at DESC`)
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to list key records", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *SQLiteStore) Search(query string) ([]KeyRecord, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.Query(`
		SELECT `+selectColumns+` FROM keys
		WHERE lower(primary_name) LIKE ? OR lower(primary_email) LIKE ? OR lower(fingerprint) LIKE ?
		ORDER BY is_own_key DESC, added_at DESC
	`, pattern, pattern, pattern)
	if err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to search key records", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]KeyRecord, error) {
	records := make([]KeyRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to scan key record", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, keychainerr.Wrap(keychainerr.BackendUnavailable, "error iterating key records", err)
	}
	return records, nil
}

func (s *SQLiteStore) Delete(fingerprint string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM keys WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to delete key record", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to read rows affected", err)
	}
	return rows > 0, nil
}

func (s *SQLiteStore) SetTrust(fingerprint string, level TrustLevel) (bool, error) {
	result, err := s.db.Exec(`UPDATE keys SET trust_level = ? WHERE fingerprint = ?`, int(level), fingerprint)
	if err != nil {
		return false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to set trust level", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, keychainerr.Wrap(keychainerr.BackendUnavailable, "failed to read rows affected", err)
	}
	return rows > 0, nil
}

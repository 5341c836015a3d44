// Package app wires the concrete backends (spec.md §4.3/§4.4) into a
// single dependency injection container, mirroring how the rest of
// the program is assembled once per session.
package app

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/keychainpgp/core/internal/bundlecodec"
	"github.com/keychainpgp/core/internal/config"
	"github.com/keychainpgp/core/internal/credentialstore"
	"github.com/keychainpgp/core/internal/cryptoengine"
	"github.com/keychainpgp/core/internal/keyringservice"
	"github.com/keychainpgp/core/internal/metadatastore"
	"github.com/keychainpgp/core/internal/secretprotector"
)

// App is the dependency injection container for the keyring core and
// everything built on top of it.
type App struct {
	Config      *config.Config
	Engine      cryptoengine.Engine
	Protector   *secretprotector.Protector
	Credentials credentialstore.Store
	Metadata    metadatastore.Store
	Keyring     keyringservice.Service
	Bundles     *bundlecodec.Codec
	Cache       *keyringservice.PassphraseCache
	Logger      *slog.Logger

	// SessionID correlates this process's log lines without ever
	// identifying which keys it touched.
	SessionID string

	// opsec mirrors Config.Opsec but is readable/writable without
	// holding a lock: EnableOpsec/DisableOpsec store it with
	// atomic.Bool.Store after swapping backends, and any goroutine
	// reading it with Load is guaranteed to observe backends that are
	// at least as new (spec.md §5).
	opsec atomic.Bool
}

// New creates an App from the default on-disk configuration.
func New() (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates an App from a caller-supplied configuration
// (used by tests and by --config flag handling).
func NewWithConfig(cfg *config.Config) (*App, error) {
	sessionID := uuid.NewString()
	logger := slog.Default().With("session_id", sessionID)

	if !cfg.Opsec {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("failed to create directories: %w", err)
		}
	}

	engine := cryptoengine.New(cryptoengine.Config{IncludeArmorMetadata: cfg.IncludeArmorMetadata})

	protector, err := secretprotector.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start session wrapping key: %w", err)
	}

	credentials, err := newCredentialStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	metadata, err := newMetadataStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	cache := keyringservice.NewPassphraseCache(cfg.PassphraseCacheTTL)
	keyring := keyringservice.New(engine, protector, credentials, metadata, cache, logger)
	bundles := bundlecodec.New(keyring, logger)

	a := &App{
		Config:      cfg,
		Engine:      engine,
		Protector:   protector,
		Credentials: credentials,
		Metadata:    metadata,
		Keyring:     keyring,
		Bundles:     bundles,
		Cache:       cache,
		Logger:      logger,
		SessionID:   sessionID,
	}
	a.opsec.Store(cfg.Opsec)
	logger.Info("session started", "opsec", cfg.Opsec)
	return a, nil
}

// newCredentialStore picks the CredentialStore backend for a fresh
// session (spec.md §4.3): OPSEC always wins with the in-memory
// backend; otherwise the OS vault is preferred and probed once, with
// the file backend as fallback.
func newCredentialStore(cfg *config.Config, logger *slog.Logger) (credentialstore.Store, error) {
	if cfg.Opsec {
		return credentialstore.NewMemoryStore(), nil
	}
	if cfg.PreferOSVault {
		vault := credentialstore.NewOSVault(logger)
		if vault.Available() {
			return vault, nil
		}
		logger.Warn("OS credential vault unavailable, falling back to file backend")
	}
	return credentialstore.NewFileStore(cfg.SecretsDir, logger)
}

// newMetadataStore picks the MetadataStore backend for a fresh session
// (spec.md §4.4): OPSEC keeps everything volatile, otherwise the
// sqlite-backed store persists across sessions.
func newMetadataStore(cfg *config.Config) (metadatastore.Store, error) {
	if cfg.Opsec {
		return metadatastore.NewMemoryStore(), nil
	}
	return metadatastore.OpenSQLiteStore(cfg.MetadataDBPath())
}

// RecoverKeyring runs the startup reconciliation pass between the
// CredentialStore and the MetadataStore (spec.md §4.5), analogous to
// crash recovery in a task-runner's persistent queue. Callers should
// invoke this once, right after New/NewWithConfig, before serving any
// keyring operation.
func (a *App) RecoverKeyring() (keyringservice.RepairReport, error) {
	report, err := a.Keyring.Repair()
	if err != nil {
		return report, fmt.Errorf("failed to reconcile keyring state: %w", err)
	}
	if len(report.DegradedFingerprints) > 0 || len(report.OrphanedSecretsRemoved) > 0 {
		a.Logger.Warn("keyring reconciliation made changes",
			"degraded", report.DegradedFingerprints,
			"orphans_removed", report.OrphanedSecretsRemoved)
	}
	return report, nil
}

// OpsecEnabled reports the current OPSEC mode.
func (a *App) OpsecEnabled() bool {
	return a.opsec.Load()
}

// EnableOpsec swaps the running session onto volatile, in-memory
// CredentialStore and MetadataStore backends (spec.md §5's
// enable_opsec command). Records already on disk are re-read once and
// copied into the new in-memory stores so the session keeps working
// with what it already knew about; nothing already at rest is
// deleted, since OPSEC governs what gets written from here forward,
// not what already exists.
func (a *App) EnableOpsec() error {
	if a.opsec.Load() {
		return nil
	}

	memCredentials := credentialstore.NewMemoryStore()
	memMetadata := metadatastore.NewMemoryStore()

	records, err := a.Metadata.List()
	if err != nil {
		return fmt.Errorf("failed to snapshot metadata before entering OPSEC mode: %w", err)
	}
	for _, record := range records {
		if err := memMetadata.Upsert(record); err != nil {
			return fmt.Errorf("failed to snapshot metadata record %s: %w", record.Fingerprint, err)
		}
		if !record.IsOwnKey {
			continue
		}
		secret, found, err := a.Credentials.Get(record.Fingerprint)
		if err != nil {
			return fmt.Errorf("failed to snapshot secret %s: %w", record.Fingerprint, err)
		}
		if found {
			if err := memCredentials.Put(record.Fingerprint, secret); err != nil {
				return fmt.Errorf("failed to snapshot secret %s: %w", record.Fingerprint, err)
			}
		}
	}

	a.Credentials = memCredentials
	a.Metadata = memMetadata
	a.Keyring = keyringservice.New(a.Engine, a.Protector, a.Credentials, a.Metadata, a.Cache, a.Logger)
	a.Bundles = bundlecodec.New(a.Keyring, a.Logger)
	a.opsec.Store(true)
	a.Logger.Info("OPSEC mode enabled, session state is now volatile")
	return nil
}

// DisableOpsec swaps the running session back onto the durable
// backends named in Config. Whatever accumulated only in memory while
// OPSEC was on is not carried back to disk; the caller re-imports or
// re-generates anything it wants to keep, matching the invariant that
// OPSEC state disappears on session end.
func (a *App) DisableOpsec() error {
	if !a.opsec.Load() {
		return nil
	}
	if err := a.Config.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	credentials, err := newCredentialStore(&config.Config{
		Opsec:         false,
		PreferOSVault: a.Config.PreferOSVault,
		SecretsDir:    a.Config.SecretsDir,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to reopen credential store: %w", err)
	}
	metadata, err := metadatastore.OpenSQLiteStore(a.Config.MetadataDBPath())
	if err != nil {
		return fmt.Errorf("failed to reopen metadata store: %w", err)
	}

	a.Credentials = credentials
	a.Metadata = metadata
	a.Keyring = keyringservice.New(a.Engine, a.Protector, a.Credentials, a.Metadata, a.Cache, a.Logger)
	a.Bundles = bundlecodec.New(a.Keyring, a.Logger)
	a.opsec.Store(false)
	a.Logger.Info("OPSEC mode disabled, session state is durable again")
	return nil
}

// PanicWipe destroys every secret the session can reach: the session
// wrapping key, the cached passphrases, and — in OPSEC mode — the
// in-memory stores themselves. Subsequent decrypt/sign attempts return
// SessionLost or NotFound (spec.md §8 invariant #12).
func (a *App) PanicWipe() {
	a.Protector.Wipe()
	a.Cache.Clear()
	if a.opsec.Load() {
		a.Credentials = credentialstore.NewMemoryStore()
		a.Metadata = metadatastore.NewMemoryStore()
		a.Keyring = keyringservice.New(a.Engine, a.Protector, a.Credentials, a.Metadata, a.Cache, a.Logger)
		a.Bundles = bundlecodec.New(a.Keyring, a.Logger)
	}
	a.Logger.Warn("panic wipe executed, session secrets are unrecoverable")
}

// Close ends the session: it wipes the session wrapping key and
// releases resources held by the durable backends.
func (a *App) Close() error {
	if a.Protector != nil {
		a.Protector.Wipe()
	}
	if a.Metadata != nil {
		return a.Metadata.Close()
	}
	return nil
}

// SaveConfig persists the current configuration to disk.
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}

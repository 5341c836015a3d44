// Package config loads and saves the single configuration structure
// the core reads at startup. The core itself never consults ambient
// environment variables (spec.md §6); only cmd/keychainpgp may.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// DataDir holds the on-disk MetadataStore database, ignored
	// entirely in OPSEC mode.
	DataDir string `yaml:"data_dir"`

	// SecretsDir is the CredentialStore file-backend root, used when
	// PreferOSVault is false or the OS vault is unavailable.
	SecretsDir string `yaml:"secrets_dir"`

	// Opsec, when true, routes MetadataStore and CredentialStore
	// through their in-memory backends for the whole session.
	Opsec bool `yaml:"opsec"`

	// PassphraseCacheTTL bounds how long a decrypted passphrase stays
	// usable without being re-entered.
	PassphraseCacheTTL time.Duration `yaml:"passphrase_cache_ttl"`

	// IncludeArmorMetadata controls whether CryptoEngine emits
	// Version/Comment armor headers.
	IncludeArmorMetadata bool `yaml:"include_armor_metadata"`

	// PreferOSVault selects the OS-keychain CredentialStore backend
	// when available, falling back to the file backend otherwise.
	PreferOSVault bool `yaml:"prefer_os_vault"`
}

// DefaultConfigPath returns ~/.config/keychainpgp/config.yaml
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir unavailable
		return filepath.Join(".", ".config", "keychainpgp", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "keychainpgp", "config.yaml")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	base := filepath.Join(homeDir, ".config", "keychainpgp")

	return &Config{
		DataDir:              base,
		SecretsDir:           filepath.Join(base, "secrets"),
		Opsec:                false,
		PassphraseCacheTTL:   10 * time.Minute,
		IncludeArmorMetadata: false,
		PreferOSVault:        true,
	}
}

// Load loads config from the given path, or returns defaults if file doesn't exist
func Load(path string) (*Config, error) {
	// If file doesn't exist, return defaults
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse YAML
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads from the default config path
func LoadDefault() (*Config, error) {
	return Load(DefaultConfigPath())
}

// Save writes the config to the given path
func (c *Config) Save(path string) error {
	// Create parent directories if they don't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Marshal to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// Write to file
	return os.WriteFile(path, data, 0644)
}

// EnsureDirectories creates all necessary directories (skipped
// entirely by callers running in OPSEC mode).
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	if err := os.MkdirAll(c.SecretsDir, 0700); err != nil {
		return err
	}
	return nil
}

// MetadataDBPath returns the path to the on-disk MetadataStore file.
func (c *Config) MetadataDBPath() string {
	return filepath.Join(c.DataDir, "keys.db")
}

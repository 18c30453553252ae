// Package config reads and writes the fimon configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"fimon/internal/fim"
)

// Config represents the main configuration for fimon. The scan keys use the
// camelCase names the original scanner wrote, so existing config files keep
// working.
type Config struct {
	HostID               string   `toml:"hostId"`
	DatabasePath         string   `toml:"databasePath"`
	MonitoredDirectories []string `toml:"monitoredDirectories"`
	ExcludeRules         []string `toml:"excludeRules"`
	IntervalSeconds      int      `toml:"intervalSeconds"`
	Recursive            bool     `toml:"recursive"`
	FollowSymlinks       bool     `toml:"followSymlinks"`
	MaxDepth             int      `toml:"maxDepth"`
	MonitoringEnabled    bool     `toml:"monitoringEnabled"`
	HmacKeyPath          string   `toml:"hmacKeyPath,omitempty"`
	ScannerVersion       string   `toml:"scannerVersion,omitempty"`

	Log        LogConfig        `toml:"log"`
	Notify     []NotifyConfig   `toml:"notify"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Dir   string `toml:"dir,omitempty"`
	Level string `toml:"level,omitempty"` // "debug", "info", "warn", "error"
}

// EncryptionConfig holds paths to the age key pair used to encrypt exported
// reports.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NotifyConfig represents configuration for one notification sink.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type NotifyConfig struct {
	Type string `toml:"type"` // "log", "syslog", "email", "telegram", or "prometheus"

	// Email-specific fields (only used when Type == "email")
	SMTPAddr string   `toml:"smtp_addr,omitempty"`
	From     string   `toml:"from,omitempty"`
	To       []string `toml:"to,omitempty"`

	// Telegram-specific fields (only used when Type == "telegram")
	BotToken string `toml:"bot_token,omitempty"`
	ChatID   string `toml:"chat_id,omitempty"`

	// Prometheus-specific fields (only used when Type == "prometheus")
	ListenAddr string `toml:"listen_addr,omitempty"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3"). With no access key
	// configured, credentials come from the AWS default chain; S3Endpoint
	// overrides the endpoint for MinIO-style deployments.
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

const (
	defaultIntervalSeconds = 3600
	defaultMaxDepth        = 20
)

// NewConfig creates a new Config with the provided values and sensible
// defaults: recursive scanning with a depth limit of 20, an hourly
// interval, and key paths under baseDir.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:            hostID,
		DatabasePath:      filepath.Join(baseDir, "baseline.db"),
		IntervalSeconds:   defaultIntervalSeconds,
		Recursive:         true,
		MaxDepth:          defaultMaxDepth,
		MonitoringEnabled: true,
		HmacKeyPath:       filepath.Join(baseDir, "keys", "hmac.key"),
		Log: LogConfig{
			Dir:   filepath.Join(baseDir, "log"),
			Level: "info",
		},
		Notify: []NotifyConfig{{Type: "log"}},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fimon.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fimon.key"),
		},
	}
}

// Validate checks the invariants a scan depends on.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("databasePath must be set")
	}
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("intervalSeconds must not be negative")
	}
	for _, rule := range c.ExcludeRules {
		if _, err := fim.ParseExcludeRule(rule); err != nil {
			return fmt.Errorf("invalid exclude rule: %w", err)
		}
	}
	return nil
}

// ScanConfig converts the file-level settings into the scanner's config,
// parsing the exclude rules. Validate must have been called first; a rule
// that fails to parse here is dropped.
func (c *Config) ScanConfig() fim.ScanConfig {
	cfg := fim.ScanConfig{
		Roots:          c.MonitoredDirectories,
		Recursive:      c.Recursive,
		FollowSymlinks: c.FollowSymlinks,
		MaxDepth:       c.MaxDepth,
	}
	for _, raw := range c.ExcludeRules {
		rule, err := fim.ParseExcludeRule(raw)
		if err != nil {
			continue
		}
		cfg.ExcludeRules = append(cfg.ExcludeRules, rule)
	}
	return cfg
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Scan keys omitted from
// the file keep the same defaults NewConfig writes, so a sparse config
// does not silently turn off recursion or depth limits.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Config{
		IntervalSeconds:   defaultIntervalSeconds,
		Recursive:         true,
		MaxDepth:          defaultMaxDepth,
		MonitoringEnabled: true,
	}
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	MediaDir string `toml:"media_dir"`
}

// Workbench identifies this physical bench.
type Workbench struct {
	BenchID     string `toml:"bench_id"`
	DisplayName string `toml:"display_name"`
	APIBind     string `toml:"api_bind"`
}

// Periphery contains configuration for the peripheral gateway.
type Periphery struct {
	GatewayURL      string `toml:"gateway_url"`
	CameraEnabled   bool   `toml:"camera_enabled"`
	PrinterEnabled  bool   `toml:"printer_enabled"`
	CallTimeout     int    `toml:"call_timeout"`
	SkipAckOnStop   bool   `toml:"skip_ack_on_stop"`
	ScannerVendorID string `toml:"scanner_vendor_id"`
}

// ContentStore contains configuration for the IPFS gateway target.
type ContentStore struct {
	Enabled        bool   `toml:"enabled"`
	GatewayURL     string `toml:"gateway_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Ledger contains configuration for the append-only datalog target.
type Ledger struct {
	Enabled          bool   `toml:"enabled"`
	NodeURL          string `toml:"node_url"`
	AccountSeed      string `toml:"account_seed"`
	RequestTimeout   int    `toml:"request_timeout"`
	ReconcileTimeout int    `toml:"reconcile_timeout"`
}

// ShortLink contains configuration for the short-link registrar target.
type ShortLink struct {
	Enabled        bool   `toml:"enabled"`
	ServerURL      string `toml:"server_url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Publish contains configuration for the publication pipeline.
type Publish struct {
	Workers        int `toml:"workers"`
	RetryCeiling   int `toml:"retry_ceiling"`
	BackoffBase    int `toml:"backoff_base"`
	BackoffCeiling int `toml:"backoff_ceiling"`
	PollInterval   int `toml:"poll_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Sessions       bool   `toml:"sessions"`
	Publications   bool   `toml:"publications"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for benchd.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and media directories
//   - Workbench: bench identity and local API bind address
//   - Periphery: peripheral gateway connection and per-call timeouts
//   - ContentStore: IPFS gateway publication target
//   - Ledger: append-only datalog publication target
//   - ShortLink: short URL registrar publication target
//   - Publish: worker pool sizing and retry/backoff policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workbench     Workbench     `toml:"workbench"`
	Periphery     Periphery     `toml:"periphery"`
	ContentStore  ContentStore  `toml:"content_store"`
	Ledger        Ledger        `toml:"ledger"`
	ShortLink     ShortLink     `toml:"short_link"`
	Publish       Publish       `toml:"publish"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/benchd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("benchd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// MediaDir is created on a best-effort basis so the daemon can run when the
// recording share is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.MediaDir) != "" {
		_ = os.MkdirAll(c.Paths.MediaDir, 0o755)
	}
	return nil
}

// PeripheryCallTimeout returns the configured peripheral call timeout.
func (c *Config) PeripheryCallTimeout() time.Duration {
	return time.Duration(c.Periphery.CallTimeout) * time.Second
}

// PublishBackoffBase returns the initial publication retry backoff.
func (c *Config) PublishBackoffBase() time.Duration {
	return time.Duration(c.Publish.BackoffBase) * time.Second
}

// PublishBackoffCeiling returns the maximum publication retry backoff.
func (c *Config) PublishBackoffCeiling() time.Duration {
	return time.Duration(c.Publish.BackoffCeiling) * time.Second
}

// PublishPollInterval returns the queue poll interval for idle workers.
func (c *Config) PublishPollInterval() time.Duration {
	return time.Duration(c.Publish.PollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}

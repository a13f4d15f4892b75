package config

import (
	"fmt"
	"net/url"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkbench()
	c.normalizePublish()
	c.normalizeTimeouts()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorkbench() {
	c.Workbench.BenchID = strings.TrimSpace(c.Workbench.BenchID)
	c.Workbench.DisplayName = strings.TrimSpace(c.Workbench.DisplayName)
	c.Workbench.APIBind = strings.TrimSpace(c.Workbench.APIBind)
	if c.Workbench.DisplayName == "" {
		c.Workbench.DisplayName = c.Workbench.BenchID
	}
}

func (c *Config) normalizePublish() {
	if c.Publish.Workers <= 0 {
		c.Publish.Workers = defaultPublishWorkers
	}
	if c.Publish.RetryCeiling <= 0 {
		c.Publish.RetryCeiling = defaultPublishRetryCeiling
	}
	if c.Publish.BackoffBase <= 0 {
		c.Publish.BackoffBase = defaultPublishBackoffBase
	}
	if c.Publish.BackoffCeiling < c.Publish.BackoffBase {
		c.Publish.BackoffCeiling = defaultPublishBackoffCeiling
	}
	if c.Publish.PollInterval <= 0 {
		c.Publish.PollInterval = defaultPublishPollInterval
	}
}

func (c *Config) normalizeTimeouts() {
	if c.Periphery.CallTimeout <= 0 {
		c.Periphery.CallTimeout = defaultPeripheryCallTimeout
	}
	if c.ContentStore.RequestTimeout <= 0 {
		c.ContentStore.RequestTimeout = defaultContentRequestTimeout
	}
	if c.Ledger.RequestTimeout <= 0 {
		c.Ledger.RequestTimeout = defaultLedgerRequestTimeout
	}
	if c.Ledger.ReconcileTimeout <= 0 {
		c.Ledger.ReconcileTimeout = defaultReconcileTimeout
	}
	if c.ShortLink.RequestTimeout <= 0 {
		c.ShortLink.RequestTimeout = defaultShortLinkTimeout
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate checks configuration consistency after normalization.
func (c *Config) Validate() error {
	if c.Workbench.BenchID == "" {
		return fmt.Errorf("workbench.bench_id must not be empty")
	}
	if err := validateURL("periphery.gateway_url", c.Periphery.GatewayURL, true); err != nil {
		return err
	}
	if err := validateURL("content_store.gateway_url", c.ContentStore.GatewayURL, c.ContentStore.Enabled); err != nil {
		return err
	}
	if err := validateURL("ledger.node_url", c.Ledger.NodeURL, c.Ledger.Enabled); err != nil {
		return err
	}
	if err := validateURL("short_link.server_url", c.ShortLink.ServerURL, c.ShortLink.Enabled); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func validateURL(field, value string, required bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return fmt.Errorf("%s must be set", field)
		}
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s: invalid URL %q", field, value)
	}
	return nil
}

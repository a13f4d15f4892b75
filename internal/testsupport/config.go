package testsupport

import (
	"path/filepath"
	"testing"

	"benchd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Workbench.BenchID = "bench-test"
	cfg.Workbench.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithBenchID overrides the bench identifier on the test config.
func WithBenchID(id string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workbench.BenchID = id
	}
}

// WithPublishWorkers sets the publication worker count on the test config.
func WithPublishWorkers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Publish.Workers = n
	}
}

package config

const (
	defaultDataDir               = "~/.local/share/benchd"
	defaultLogDir                = "~/.local/share/benchd/logs"
	defaultMediaDir              = "~/.local/share/benchd/media"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultBenchID               = "bench-1"
	defaultPeripheryGatewayURL   = "http://127.0.0.1:8083"
	defaultPeripheryCallTimeout  = 20
	defaultContentGatewayURL     = "http://127.0.0.1:8082"
	defaultContentRequestTimeout = 120
	defaultLedgerRequestTimeout  = 60
	defaultReconcileTimeout      = 30
	defaultShortLinkTimeout      = 10
	defaultPublishWorkers        = 2
	defaultPublishRetryCeiling   = 6
	defaultPublishBackoffBase    = 1
	defaultPublishBackoffCeiling = 300
	defaultPublishPollInterval   = 5
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
		},
		Workbench: Workbench{
			BenchID: defaultBenchID,
			APIBind: defaultAPIBind,
		},
		Periphery: Periphery{
			GatewayURL:     defaultPeripheryGatewayURL,
			CameraEnabled:  true,
			PrinterEnabled: true,
			CallTimeout:    defaultPeripheryCallTimeout,
		},
		ContentStore: ContentStore{
			Enabled:        true,
			GatewayURL:     defaultContentGatewayURL,
			RequestTimeout: defaultContentRequestTimeout,
		},
		Ledger: Ledger{
			Enabled:          true,
			RequestTimeout:   defaultLedgerRequestTimeout,
			ReconcileTimeout: defaultReconcileTimeout,
		},
		ShortLink: ShortLink{
			Enabled:        true,
			RequestTimeout: defaultShortLinkTimeout,
		},
		Publish: Publish{
			Workers:        defaultPublishWorkers,
			RetryCeiling:   defaultPublishRetryCeiling,
			BackoffBase:    defaultPublishBackoffBase,
			BackoffCeiling: defaultPublishBackoffCeiling,
			PollInterval:   defaultPublishPollInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Sessions:       true,
			Publications:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

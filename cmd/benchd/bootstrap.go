package main

import (
	"path/filepath"
	"strings"

	"log/slog"

	"benchd/internal/config"
	"benchd/internal/daemon"
	"benchd/internal/metrics"
	"benchd/internal/notifications"
	"benchd/internal/publish"
	"benchd/internal/services/datalog"
	"benchd/internal/services/ipfs"
	"benchd/internal/services/periphery"
	"benchd/internal/services/shortlink"
	"benchd/internal/store"
	"benchd/internal/workbench"
)

// buildDaemon wires the supervisor, publication targets, and peripherals
// according to the configuration's enable flags.
func buildDaemon(cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	recorder := metrics.NewRecorder()
	notifier := notifications.NewService(cfg)

	var camera periphery.CameraController
	var printer periphery.PrinterController
	var scanner periphery.IdentityScanner
	if strings.TrimSpace(cfg.Periphery.GatewayURL) != "" {
		gateway := periphery.NewGateway(cfg)
		scanner = gateway
		if cfg.Periphery.CameraEnabled {
			camera = gateway
		}
		if cfg.Periphery.PrinterEnabled {
			printer = gateway
		}
	}

	var monitor *periphery.ScannerMonitor
	if vendor := strings.TrimSpace(cfg.Periphery.ScannerVendorID); vendor != "" {
		monitor = periphery.NewScannerMonitor(logger, vendor)
	}

	sup := workbench.NewSupervisor(cfg, st, logger, recorder, notifier, camera, printer)

	targets := buildTargets(cfg, st)
	pipeline := publish.NewPipeline(cfg, st, logger, recorder, targets...)
	pipeline.SetNotifier(notifier)
	pipeline.OnSettled(sup.HandlePublicationSettled)

	d, err := daemon.New(cfg, st, logger, sup, pipeline, monitor, recorder)
	if err != nil {
		return nil, err
	}
	d.SetScanner(scanner)
	return d, nil
}

func buildTargets(cfg *config.Config, st *store.Store) []publish.Target {
	var targets []publish.Target
	if cfg.ContentStore.Enabled {
		targets = append(targets, publish.NewContentStoreTarget(ipfs.NewClient(cfg)))
	}
	if cfg.Ledger.Enabled {
		targets = append(targets, publish.NewLedgerTarget(datalog.NewClient(cfg)))
	}
	if cfg.ShortLink.Enabled {
		targets = append(targets, publish.NewShortLinkTarget(shortlink.NewClient(cfg), st))
	}
	return targets
}

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "benchd.sock")
	}
	return filepath.Join(cfg.Paths.LogDir, "benchd.sock")
}

package periphery

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"benchd/internal/logging"
)

// ScannerMonitor listens for udev netlink events and tracks whether the
// RFID/barcode scanner is attached. Presence feeds the status surface so an
// operator can tell a dead scanner apart from a dead gateway.
type ScannerMonitor struct {
	logger   *slog.Logger
	vendorID string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	present bool
}

// NewScannerMonitor creates a monitor for USB HID scanner hotplug events.
// vendorID may be empty, in which case all HID attach/detach events count.
func NewScannerMonitor(logger *slog.Logger, vendorID string) *ScannerMonitor {
	return &ScannerMonitor{
		logger:   logging.NewComponentLogger(logger, "scanner-monitor"),
		vendorID: strings.TrimSpace(vendorID),
	}
}

// Start begins listening for udev netlink events. Failure to connect is
// non-fatal: scan handling still works, only presence reporting degrades.
func (m *ScannerMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; scanner presence will be unknown",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "scanner hotplug status unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	m.present = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("scanner monitor started",
		logging.String(logging.FieldEventType, "scanner_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *ScannerMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
}

// Running reports whether the monitor is active.
func (m *ScannerMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ScannerPresent reports the last observed scanner attachment state.
func (m *ScannerMonitor) ScannerPresent() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}

func (m *ScannerMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("scanner monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scanner_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "scanner presence may be stale"),
			)
		}
	}
}

func (m *ScannerMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	env := map[string]string{"SUBSYSTEM": "hid"}
	if m.vendorID != "" {
		env["HID_ID"] = m.vendorID
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    env,
	})
	return rules
}

func (m *ScannerMonitor) handleEvent(uevent netlink.UEvent) {
	attached := uevent.Action == netlink.ADD

	m.mu.Lock()
	changed := m.present != attached
	m.present = attached
	m.mu.Unlock()

	if !changed {
		return
	}
	if attached {
		m.logger.Info("scanner attached",
			logging.String(logging.FieldEventType, "scanner_attached"),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	m.logger.Warn("scanner detached",
		logging.String(logging.FieldEventType, "scanner_detached"),
		logging.String("kobj", uevent.KObj),
		logging.String(logging.FieldErrorHint, "reconnect the scanner"),
		logging.String(logging.FieldImpact, "operator and unit scans will not arrive"),
	)
}

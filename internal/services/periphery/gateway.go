package periphery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"benchd/internal/config"
	"benchd/internal/services"
)

// ErrPeripheralTimeout reports a camera or printer call that exceeded the
// configured per-call timeout. The stage fails; the session stays open.
var ErrPeripheralTimeout = errors.New("peripheral timeout")

// HTTPDoer describes the HTTP client used by the gateway client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway is the HTTP client for the peripheral gateway. It implements
// CameraController and PrinterController.
type Gateway struct {
	baseURL     string
	client      HTTPDoer
	callTimeout time.Duration
	skipAck     bool
}

// NewGateway builds a gateway client from configuration.
func NewGateway(cfg *config.Config) *Gateway {
	if cfg == nil {
		return &Gateway{client: http.DefaultClient, callTimeout: 20 * time.Second}
	}
	return &Gateway{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.Periphery.GatewayURL), "/"),
		client:      http.DefaultClient,
		callTimeout: cfg.PeripheryCallTimeout(),
		skipAck:     cfg.Periphery.SkipAckOnStop,
	}
}

// NewGatewayWithDoer builds a gateway client with a custom HTTP doer (tests).
func NewGatewayWithDoer(baseURL string, doer HTTPDoer, callTimeout time.Duration) *Gateway {
	return &Gateway{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:      doer,
		callTimeout: callTimeout,
	}
}

// StartRecording asks the gateway to start the bench camera.
func (g *Gateway) StartRecording(ctx context.Context, operatorID string) (JobHandle, error) {
	var handle JobHandle
	err := g.post(ctx, "/camera/start", map[string]string{"operator_id": operatorID}, &handle)
	return handle, err
}

// StopRecording stops the recording identified by handle and returns the
// media reference. In skip-acknowledgement mode the gateway replies as soon
// as it accepts the stop request and the media path may arrive empty.
func (g *Gateway) StopRecording(ctx context.Context, handle JobHandle) (MediaRef, error) {
	var ref MediaRef
	payload := map[string]any{"id": handle.ID, "skip_ack": g.skipAck}
	err := g.post(ctx, "/camera/stop", payload, &ref)
	return ref, err
}

// Print submits a label print job.
func (g *Gateway) Print(ctx context.Context, spec PrintSpec) (PrintReceipt, error) {
	var receipt PrintReceipt
	err := g.post(ctx, "/printer/print", spec, &receipt)
	return receipt, err
}

// Scan long-polls the gateway for the next RFID or barcode read. A 204 or
// empty body means the poll window lapsed with nothing scanned; callers loop.
// The per-call timeout does not apply, the caller's context bounds the wait.
func (g *Gateway) Scan(ctx context.Context) (*IdentityEvent, error) {
	if g.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "periphery", "/scan", "gateway URL not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/scan", nil)
	if err != nil {
		return nil, fmt.Errorf("build scan request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "periphery", "/scan", "gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "periphery", "/scan", "read gateway response", err)
	}
	if resp.StatusCode == http.StatusNoContent || (resp.StatusCode < 300 && len(raw) == 0) {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, services.Wrap(services.ErrExternalService, "periphery", "/scan",
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var ev IdentityEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "periphery", "/scan", "decode scan event", err)
	}
	if ev.Kind == "" || ev.Payload == "" {
		return nil, nil
	}
	return &ev, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload any, out any) error {
	if g.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, "periphery", path, "gateway URL not configured", nil)
	}

	callCtx := ctx
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s after %s", ErrPeripheralTimeout, path, g.callTimeout)
		}
		return services.Wrap(services.ErrTransient, "periphery", path, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "periphery", path, "read gateway response", err)
	}
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrExternalService, "periphery", path,
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrExternalService, "periphery", path, "decode gateway response", err)
	}
	return nil
}

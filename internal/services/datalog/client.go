package datalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"benchd/internal/config"
	"benchd/internal/services"
)

// HTTPDoer describes the HTTP client used by the ledger client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a datalog node.
type Client struct {
	baseURL string
	seed    string
	client  HTTPDoer

	reconcileTimeout time.Duration
}

// NewClient builds a ledger client from configuration.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		return &Client{client: http.DefaultClient}
	}
	return &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.Ledger.NodeURL), "/"),
		seed:             strings.TrimSpace(cfg.Ledger.AccountSeed),
		client:           &http.Client{Timeout: time.Duration(cfg.Ledger.RequestTimeout) * time.Second},
		reconcileTimeout: time.Duration(cfg.Ledger.ReconcileTimeout) * time.Second,
	}
}

// NewClientWithDoer builds a ledger client with a custom HTTP doer (tests).
func NewClientWithDoer(baseURL string, doer HTTPDoer) *Client {
	return &Client{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:           doer,
		reconcileTimeout: 5 * time.Second,
	}
}

type submitRequest struct {
	Payload string `json:"payload"`
	Seed    string `json:"seed,omitempty"`
}

type submitResponse struct {
	TxID string `json:"txn_hash"`
}

type queryResponse struct {
	TxID string `json:"txn_hash"`
}

// Submit records the payload in the datalog and returns the transaction id.
// Every call creates a distinct ledger entry; the pipeline is responsible
// for the duplicate-submission guard.
func (c *Client) Submit(ctx context.Context, payload string) (string, error) {
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "datalog", "submit", "node URL not configured", nil)
	}

	body, err := json.Marshal(submitRequest{Payload: payload, Seed: c.seed})
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/datalog/record", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "datalog", "submit", "node unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "datalog", "submit", "read node response", err)
	}
	if resp.StatusCode >= 400 {
		return "", services.Wrap(services.ErrExternalService, "datalog", "submit",
			fmt.Sprintf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", services.Wrap(services.ErrExternalService, "datalog", "submit", "decode node response", err)
	}
	if decoded.TxID == "" {
		return "", services.Wrap(services.ErrExternalService, "datalog", "submit", "node response missing transaction id", nil)
	}
	return decoded.TxID, nil
}

// QueryByPayloadHash looks for an existing transaction referencing the given
// content hash. Returns services.ErrNotFound when the ledger has no entry.
func (c *Client) QueryByPayloadHash(ctx context.Context, hash string) (string, error) {
	if c.baseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "datalog", "query", "node URL not configured", nil)
	}

	queryCtx := ctx
	if c.reconcileTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.reconcileTimeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/datalog/by-payload-hash?hash=" + url.QueryEscape(hash)
	req, err := http.NewRequestWithContext(queryCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build query request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "datalog", "query", "node unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", services.Wrap(services.ErrNotFound, "datalog", "query", "no transaction for payload hash", nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "datalog", "query", "read node response", err)
	}
	if resp.StatusCode >= 400 {
		return "", services.Wrap(services.ErrExternalService, "datalog", "query",
			fmt.Sprintf("node returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded queryResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", services.Wrap(services.ErrExternalService, "datalog", "query", "decode node response", err)
	}
	if decoded.TxID == "" {
		return "", services.Wrap(services.ErrNotFound, "datalog", "query", "no transaction for payload hash", nil)
	}
	return decoded.TxID, nil
}

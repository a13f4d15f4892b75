package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"benchd/internal/config"
	"benchd/internal/services"
)

// HTTPDoer describes the HTTP client used by the gateway client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result holds the gateway response for a published file.
type Result struct {
	CID string
	URL string
}

// Client uploads files to the content-store gateway.
type Client struct {
	baseURL string
	client  HTTPDoer
}

// NewClient builds a gateway client from configuration.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		return &Client{client: http.DefaultClient}
	}
	timeout := time.Duration(cfg.ContentStore.RequestTimeout) * time.Second
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.ContentStore.GatewayURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// NewClientWithDoer builds a gateway client with a custom HTTP doer (tests).
func NewClientWithDoer(baseURL string, doer HTTPDoer) *Client {
	return &Client{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), client: doer}
}

type publishResponse struct {
	Status   int    `json:"status"`
	IPFSCID  string `json:"ipfs_cid"`
	IPFSLink string `json:"ipfs_link"`
}

// Publish uploads the named payload and returns its content address.
func (c *Client) Publish(ctx context.Context, name string, payload []byte) (Result, error) {
	if c.baseURL == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "ipfs", "publish", "gateway URL not configured", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file_data", name)
	if err != nil {
		return Result{}, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return Result{}, fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/publish-to-ipfs/upload-file", &body)
	if err != nil {
		return Result{}, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "ipfs", "publish", "gateway unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "ipfs", "publish", "read gateway response", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, services.Wrap(services.ErrExternalService, "ipfs", "publish",
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded publishResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, services.Wrap(services.ErrExternalService, "ipfs", "publish", "decode gateway response", err)
	}
	if decoded.IPFSCID == "" {
		return Result{}, services.Wrap(services.ErrExternalService, "ipfs", "publish", "gateway response missing CID", nil)
	}

	return Result{CID: decoded.IPFSCID, URL: decoded.IPFSLink}, nil
}

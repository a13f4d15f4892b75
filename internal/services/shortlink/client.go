package shortlink

import (
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

// HTTPDoer describes the HTTP client used by the registrar client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a yourls short-link server.
type Client struct {
	serverURL string
	username  string
	password  string
	client    HTTPDoer
}

// NewClient builds a registrar client from configuration.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		return &Client{client: http.DefaultClient}
	}
	return &Client{
		serverURL: strings.TrimRight(strings.TrimSpace(cfg.ShortLink.ServerURL), "/"),
		username:  cfg.ShortLink.Username,
		password:  cfg.ShortLink.Password,
		client:    &http.Client{Timeout: time.Duration(cfg.ShortLink.RequestTimeout) * time.Second},
	}
}

// NewClientWithDoer builds a registrar client with a custom HTTP doer (tests).
func NewClientWithDoer(serverURL string, doer HTTPDoer) *Client {
	return &Client{serverURL: strings.TrimRight(strings.TrimSpace(serverURL), "/"), client: doer}
}

type yourlsResponse struct {
	Status    string `json:"status"`
	ShortURL  string `json:"shorturl"`
	Message   string `json:"message"`
	ErrorCode string `json:"code"`
}

// Upsert registers (or re-points) the short link for keyword to targetURL
// and returns the public short URL. The yourls "shorturl" action fails with
// "keyword already exists" on repeats, so that case falls through to the
// "update" action.
func (c *Client) Upsert(ctx context.Context, keyword, targetURL string) (string, error) {
	if c.serverURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "shortlink", "upsert", "server URL not configured", nil)
	}

	resp, err := c.call(ctx, url.Values{
		"action":  {"shorturl"},
		"keyword": {keyword},
		"url":     {targetURL},
	})
	if err != nil {
		return "", err
	}
	if resp.Status == "success" && resp.ShortURL != "" {
		return resp.ShortURL, nil
	}

	if resp, err = c.call(ctx, url.Values{
		"action":   {"update"},
		"shorturl": {keyword},
		"url":      {targetURL},
	}); err != nil {
		return "", err
	}
	if resp.Status == "fail" {
		return "", services.Wrap(services.ErrExternalService, "shortlink", "upsert", resp.Message, nil)
	}
	return c.serverURL + "/" + keyword, nil
}

func (c *Client) call(ctx context.Context, params url.Values) (*yourlsResponse, error) {
	params.Set("format", "json")
	if c.username != "" {
		params.Set("username", c.username)
		params.Set("password", c.password)
	}

	endpoint := c.serverURL + "/yourls-api.php?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build registrar request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "shortlink", "call", "registrar unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "shortlink", "call", "read registrar response", err)
	}
	if resp.StatusCode >= 500 {
		return nil, services.Wrap(services.ErrTransient, "shortlink", "call",
			fmt.Sprintf("registrar returned %d", resp.StatusCode), nil)
	}

	var decoded yourlsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "shortlink", "call", "decode registrar response", err)
	}
	return &decoded, nil
}

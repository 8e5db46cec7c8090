// Package proxy is a thin client for the reverse-proxy control plane. All
// mutating calls are idempotent at the proxy: reloading an already-current
// configuration and removing an absent route are acknowledged no-ops.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the proxy admin API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a proxy admin client.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Domains returns the hostnames the proxy currently serves.
func (c *Client) Domains(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/domains", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query proxy domains: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query proxy domains: status %d", resp.StatusCode)
	}

	var domains []string
	if err := json.NewDecoder(resp.Body).Decode(&domains); err != nil {
		return nil, fmt.Errorf("decode proxy domains: %w", err)
	}
	return domains, nil
}

// RemoveRoute deletes the route for domain. A 404 means the route is
// already gone, which is the desired state.
func (c *Client) RemoveRoute(ctx context.Context, domain string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/routes/"+url.PathEscape(domain), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remove route %s: %w", domain, err)
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug().Str("domain", domain).Msg("Route already absent")
		return nil
	default:
		return fmt.Errorf("remove route %s: status %d", domain, resp.StatusCode)
	}
}

// Reload applies the proxy's on-disk configuration.
func (c *Client) Reload(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/reload", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reload proxy: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reload proxy: status %d", resp.StatusCode)
	}

	c.logger.Info().Msg("Proxy configuration reloaded")
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("proxy admin URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	return req, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

package certs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client calls the certificate manager collaborator. Renew and Revoke are
// idempotent at the target: renewing an already-current certificate and
// revoking an already-revoked one are acknowledged no-ops.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a certificate manager client.
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Renew asks the collaborator to renew the certificate for domain.
func (c *Client) Renew(ctx context.Context, domain string) error {
	return c.post(ctx, "/renew", domain)
}

// Revoke asks the collaborator to revoke the certificate for domain.
func (c *Client) Revoke(ctx context.Context, domain string) error {
	return c.post(ctx, "/revoke", domain)
}

func (c *Client) post(ctx context.Context, path, domain string) error {
	if c.baseURL == "" {
		return fmt.Errorf("certificate manager URL is not configured")
	}

	payload, err := json.Marshal(map[string]string{"domain": domain})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("certificate manager %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("certificate manager %s for %s: status %d: %s", path, domain, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Debug().Str("domain", domain).Str("op", path).Msg("Certificate manager call acknowledged")
	return nil
}

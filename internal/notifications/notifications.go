// Package notifications delivers watchdog findings to the shared alerting
// channel over webhooks.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halcyonops/vigil/internal/models"
)

const maxDeliveryHistory = 100

// Webhook describes one alert transport target.
type Webhook struct {
	Name    string
	URL     string
	Method  string
	Headers map[string]string
}

// Delivery tracks one webhook delivery attempt for debugging.
type Delivery struct {
	ID          string    `json:"id"`
	WebhookName string    `json:"webhookName"`
	Probe       string    `json:"probe"`
	EntityID    string    `json:"entityId"`
	Timestamp   time.Time `json:"timestamp"`
	StatusCode  int       `json:"statusCode"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

// payload is the JSON body posted to each webhook.
type payload struct {
	Source   string          `json:"source"`
	RunID    string          `json:"runId,omitempty"`
	Hostname string          `json:"hostname,omitempty"`
	Probe    string          `json:"probe"`
	Severity models.Severity `json:"severity"`
	Kind     string          `json:"kind"`
	Entity   string          `json:"entity"`
	State    string          `json:"state,omitempty"`
	Reason   string          `json:"reason"`
	Time     time.Time       `json:"time"`
}

// Notifier posts findings to every configured webhook. Notify reports
// failure unless at least one webhook acknowledged the alert; alerting is
// the escalation path of last resort and must not fail silently.
type Notifier struct {
	mu       sync.Mutex
	webhooks []Webhook
	history  []Delivery
	http     *http.Client
	runID    string
	hostname string
	logger   zerolog.Logger
}

// Config wires a Notifier.
type Config struct {
	Webhooks []Webhook
	Timeout  time.Duration
	RunID    string
	Hostname string
	Logger   zerolog.Logger
}

// New creates a Notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		webhooks: cfg.Webhooks,
		history:  make([]Delivery, 0, maxDeliveryHistory),
		http:     &http.Client{Timeout: timeout},
		runID:    cfg.RunID,
		hostname: cfg.Hostname,
		logger:   cfg.Logger,
	}
}

// Notify forwards one finding to the alert transport. It returns nil once
// any webhook acknowledges with a 2xx status.
func (n *Notifier) Notify(ctx context.Context, finding models.Finding) error {
	if len(n.webhooks) == 0 {
		return errors.New("no alert webhooks configured")
	}

	body, err := json.Marshal(payload{
		Source:   "vigil",
		RunID:    n.runID,
		Hostname: n.hostname,
		Probe:    finding.Probe,
		Severity: finding.Severity,
		Kind:     string(finding.Entity.Kind),
		Entity:   finding.Entity.DisplayName(),
		State:    finding.Entity.State,
		Reason:   finding.Reason,
		Time:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	var lastErr error
	acknowledged := false
	for _, hook := range n.webhooks {
		if err := n.deliver(ctx, hook, finding, body); err != nil {
			n.logger.Warn().
				Str("webhook", hook.Name).
				Str("probe", finding.Probe).
				Err(err).
				Msg("Webhook delivery failed")
			lastErr = err
			continue
		}
		acknowledged = true
	}

	if !acknowledged {
		return fmt.Errorf("all webhooks failed: %w", lastErr)
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, hook Webhook, finding models.Finding, body []byte) error {
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewReader(body))
	if err != nil {
		n.record(hook, finding, 0, err)
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range hook.Headers {
		req.Header.Set(key, value)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		n.record(hook, finding, 0, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook %s: status %d", hook.Name, resp.StatusCode)
		n.record(hook, finding, resp.StatusCode, err)
		return err
	}

	n.record(hook, finding, resp.StatusCode, nil)
	return nil
}

func (n *Notifier) record(hook Webhook, finding models.Finding, status int, err error) {
	delivery := Delivery{
		ID:          uuid.NewString(),
		WebhookName: hook.Name,
		Probe:       finding.Probe,
		EntityID:    finding.Entity.ID,
		Timestamp:   time.Now().UTC(),
		StatusCode:  status,
		Success:     err == nil,
	}
	if err != nil {
		delivery.Error = err.Error()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, delivery)
	if len(n.history) > maxDeliveryHistory {
		n.history = n.history[len(n.history)-maxDeliveryHistory:]
	}
}

// History returns a copy of recent deliveries, newest last.
func (n *Notifier) History() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery(nil), n.history...)
}

// WebhookNames lists configured webhook names for logging.
func (n *Notifier) WebhookNames() string {
	names := make([]string, 0, len(n.webhooks))
	for _, hook := range n.webhooks {
		names = append(names, hook.Name)
	}
	return strings.Join(names, ",")
}

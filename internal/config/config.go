package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/halcyonops/vigil/internal/models"
)

// Default collaborator timeouts, applied when the config omits them.
const (
	defaultDockerTimeout = 15 * time.Second
	defaultCertTimeout   = 30 * time.Second
	defaultProxyTimeout  = 10 * time.Second
	defaultAlertTimeout  = 10 * time.Second
)

// LogSettings controls logger initialization.
type LogSettings struct {
	Format string `yaml:"format" json:"format"`
	Level  string `yaml:"level" json:"level"`
}

// DockerSettings points the inventory at a container runtime socket.
type DockerSettings struct {
	Host    string `yaml:"host" json:"host"`
	Timeout string `yaml:"timeout" json:"timeout"` // duration string, e.g. "15s"
}

// VolumeSettings tunes the orphan-volume heuristic. Volumes whose mountpoint
// lives under a bootstrap prefix are provisioning artefacts, not leaks.
type VolumeSettings struct {
	BootstrapPrefixes []string `yaml:"bootstrapPrefixes" json:"bootstrapPrefixes"`
}

// CertSettings configures certificate scanning and the renewal collaborator.
type CertSettings struct {
	Dir             string `yaml:"dir" json:"dir"`
	ManagerURL      string `yaml:"managerUrl" json:"managerUrl"`
	Token           string `yaml:"token" json:"token"`
	RenewWithinDays int    `yaml:"renewWithinDays" json:"renewWithinDays"`
	Timeout         string `yaml:"timeout" json:"timeout"`
}

// ProxySettings configures the reverse-proxy admin endpoint.
type ProxySettings struct {
	AdminURL string `yaml:"adminUrl" json:"adminUrl"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// AlertSettings configures the alert transport.
type AlertSettings struct {
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ProbeSettings enables or disables individual probes.
type ProbeSettings struct {
	ContainerHealth   bool `yaml:"containerHealth" json:"containerHealth"`
	OrphanVolumes     bool `yaml:"orphanVolumes" json:"orphanVolumes"`
	CertExpiry        bool `yaml:"certExpiry" json:"certExpiry"`
	DeprecatedDomains bool `yaml:"deprecatedDomains" json:"deprecatedDomains"`
}

// WhitelistRule suppresses findings for matching entities. Pattern is either
// an exact identifier or a wildcard pattern (* and ? supported).
type WhitelistRule struct {
	Kind    models.EntityKind `yaml:"kind" json:"kind"`
	Pattern string            `yaml:"pattern" json:"pattern"`
	Comment string            `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// WebhookSettings describes one alert transport target.
type WebhookSettings struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url"`
	Method  string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// OneShotTask is a named setup action executed at most once per invocation
// under a constant idempotency key (e.g. global theme injection).
type OneShotTask struct {
	Name    string            `yaml:"name" json:"name"`
	URL     string            `yaml:"url" json:"url"`
	Method  string            `yaml:"method,omitempty" json:"method,omitempty"`
	Body    string            `yaml:"body,omitempty" json:"body,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Settings is the full configuration surface for one invocation. It is
// loaded once at startup and never mutated during the run.
type Settings struct {
	Log               LogSettings       `yaml:"log" json:"log"`
	Docker            DockerSettings    `yaml:"docker" json:"docker"`
	Volumes           VolumeSettings    `yaml:"volumes" json:"volumes"`
	Certs             CertSettings      `yaml:"certs" json:"certs"`
	Proxy             ProxySettings     `yaml:"proxy" json:"proxy"`
	Alerts            AlertSettings     `yaml:"alerts" json:"alerts"`
	Probes            ProbeSettings     `yaml:"probes" json:"probes"`
	Whitelist         []WhitelistRule   `yaml:"whitelist" json:"whitelist"`
	DeprecatedDomains []string          `yaml:"deprecatedDomains" json:"deprecatedDomains"`
	Webhooks          []WebhookSettings `yaml:"webhooks" json:"webhooks"`
	OneShotTasks      []OneShotTask     `yaml:"oneShotTasks" json:"oneShotTasks"`
	DispatchWorkers   int               `yaml:"dispatchWorkers" json:"dispatchWorkers"`
}

// DefaultSettings returns the baseline configuration before file and env
// overrides are applied.
func DefaultSettings() *Settings {
	return &Settings{
		Log: LogSettings{Format: "auto", Level: "info"},
		Certs: CertSettings{
			Dir:             "/etc/vigil/certs",
			RenewWithinDays: 30,
		},
		Probes: ProbeSettings{
			ContainerHealth:   true,
			OrphanVolumes:     true,
			CertExpiry:        true,
			DeprecatedDomains: true,
		},
		DispatchWorkers: 4,
	}
}

// RenewThreshold converts the day-based config value into a duration.
func (s *Settings) RenewThreshold() time.Duration {
	return time.Duration(s.Certs.RenewWithinDays) * 24 * time.Hour
}

// DockerTimeout returns the parsed runtime-query timeout.
func (s *Settings) DockerTimeout() time.Duration {
	return parseTimeout(s.Docker.Timeout, defaultDockerTimeout)
}

// CertTimeout returns the parsed certificate-collaborator timeout.
func (s *Settings) CertTimeout() time.Duration {
	return parseTimeout(s.Certs.Timeout, defaultCertTimeout)
}

// ProxyTimeout returns the parsed proxy admin API timeout.
func (s *Settings) ProxyTimeout() time.Duration {
	return parseTimeout(s.Proxy.Timeout, defaultProxyTimeout)
}

// AlertTimeout returns the parsed alert transport timeout.
func (s *Settings) AlertTimeout() time.Duration {
	return parseTimeout(s.Alerts.Timeout, defaultAlertTimeout)
}

func parseTimeout(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	// Bare numbers are treated as seconds, matching common operator habit.
	if d, err := time.ParseDuration(value + "s"); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Validate rejects configurations that would make suppression or dispatch
// decisions unsafe. Acting on an unparseable whitelist risks false
// suppressions, so any error here aborts the invocation before probes run.
func (s *Settings) Validate() error {
	if s.Certs.RenewWithinDays <= 0 {
		return fmt.Errorf("certs.renewWithinDays must be positive, got %d", s.Certs.RenewWithinDays)
	}
	if s.DispatchWorkers <= 0 {
		return fmt.Errorf("dispatchWorkers must be positive, got %d", s.DispatchWorkers)
	}

	for _, field := range []struct{ name, value string }{
		{"docker.timeout", s.Docker.Timeout},
		{"certs.timeout", s.Certs.Timeout},
		{"proxy.timeout", s.Proxy.Timeout},
		{"alerts.timeout", s.Alerts.Timeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			if _, err2 := time.ParseDuration(field.value + "s"); err2 != nil {
				return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
			}
		}
	}

	validKinds := make(map[models.EntityKind]struct{}, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		validKinds[kind] = struct{}{}
	}
	for i, rule := range s.Whitelist {
		if _, ok := validKinds[rule.Kind]; !ok {
			return fmt.Errorf("whitelist[%d]: unknown entity kind %q", i, rule.Kind)
		}
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("whitelist[%d]: pattern must not be empty", i)
		}
	}

	for i, domain := range s.DeprecatedDomains {
		if strings.TrimSpace(domain) == "" {
			return fmt.Errorf("deprecatedDomains[%d]: domain must not be empty", i)
		}
	}

	for i, hook := range s.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d]: url is required", i)
		}
		if _, err := url.ParseRequestURI(hook.URL); err != nil {
			return fmt.Errorf("webhooks[%d]: invalid url: %w", i, err)
		}
	}

	for i, task := range s.OneShotTasks {
		if strings.TrimSpace(task.Name) == "" {
			return fmt.Errorf("oneShotTasks[%d]: name is required", i)
		}
		if _, err := url.ParseRequestURI(task.URL); err != nil {
			return fmt.Errorf("oneShotTasks[%d]: invalid url: %w", i, err)
		}
	}

	if s.Probes.CertExpiry && s.Certs.Dir == "" {
		return fmt.Errorf("certs.dir is required when the cert-expiry probe is enabled")
	}
	if s.Probes.DeprecatedDomains && len(s.DeprecatedDomains) > 0 && s.Proxy.AdminURL == "" {
		return fmt.Errorf("proxy.adminUrl is required when deprecated domains are configured")
	}

	return nil
}

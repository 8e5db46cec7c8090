package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	vigilerr "github.com/halcyonops/vigil/internal/errors"
)

// Loader handles loading configuration from defaults, a config file, and
// environment variables, in that order of precedence.
type Loader struct {
	settings    *Settings
	configPaths []string
	envPrefix   string
}

// NewLoader creates a configuration loader with the default search paths.
func NewLoader() *Loader {
	return &Loader{
		settings:  DefaultSettings(),
		envPrefix: "VIGIL_",
		configPaths: []string{
			"/etc/vigil/vigil.yml",
			"/etc/vigil/vigil.yaml",
			"./vigil.yml",
			"./vigil.yaml",
		},
	}
}

// SetConfigPath puts an explicit config path ahead of the search list.
func (l *Loader) SetConfigPath(path string) {
	l.configPaths = append([]string{path}, l.configPaths...)
}

// Load resolves the final settings. A validation failure is a fatal
// configuration error; the invocation must not start.
func (l *Loader) Load() (*Settings, error) {
	if err := l.loadFromFile(); err != nil {
		return nil, vigilerr.WrapConfig("load_config_file", err)
	}

	l.loadFromEnv()

	if err := l.settings.Validate(); err != nil {
		return nil, vigilerr.WrapConfig("validate_config", err)
	}

	return l.settings, nil
}

// loadFromFile loads configuration from the first found config file. A
// missing file is not an error; defaults plus env cover the minimal setup.
func (l *Loader) loadFromFile() error {
	var configPath string
	for _, path := range l.configPaths {
		if _, err := os.Stat(path); err == nil {
			configPath = path
			break
		}
	}

	if configPath == "" {
		log.Debug().Msg("No config file found, using defaults and environment")
		return nil
	}

	log.Info().Str("path", configPath).Msg("Loading configuration file")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, l.settings); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, l.settings); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

// loadFromEnv applies environment overrides on top of file values.
func (l *Loader) loadFromEnv() {
	s := l.settings

	if val := os.Getenv(l.envPrefix + "LOG_LEVEL"); val != "" {
		s.Log.Level = val
	}
	if val := os.Getenv(l.envPrefix + "LOG_FORMAT"); val != "" {
		s.Log.Format = val
	}
	if val := os.Getenv(l.envPrefix + "DOCKER_HOST"); val != "" {
		s.Docker.Host = val
	}
	if val := os.Getenv(l.envPrefix + "VOLUME_BOOTSTRAP_PREFIXES"); val != "" {
		s.Volumes.BootstrapPrefixes = append(s.Volumes.BootstrapPrefixes, splitList(val)...)
	}
	if val := os.Getenv(l.envPrefix + "CERT_DIR"); val != "" {
		s.Certs.Dir = val
	}
	if val := os.Getenv(l.envPrefix + "CERT_MANAGER_URL"); val != "" {
		s.Certs.ManagerURL = val
	}
	if val := os.Getenv(l.envPrefix + "CERT_MANAGER_TOKEN"); val != "" {
		s.Certs.Token = val
	}
	if val := os.Getenv(l.envPrefix + "RENEW_WITHIN_DAYS"); val != "" {
		if days, err := strconv.Atoi(val); err == nil {
			s.Certs.RenewWithinDays = days
		} else {
			log.Warn().Str("value", val).Msg("Ignoring non-numeric RENEW_WITHIN_DAYS override")
		}
	}
	if val := os.Getenv(l.envPrefix + "PROXY_ADMIN_URL"); val != "" {
		s.Proxy.AdminURL = val
	}
	if val := os.Getenv(l.envPrefix + "ALERT_WEBHOOK_URL"); val != "" {
		s.Webhooks = append(s.Webhooks, WebhookSettings{Name: "env", URL: val})
	}
	if val := os.Getenv(l.envPrefix + "DEPRECATED_DOMAINS"); val != "" {
		s.DeprecatedDomains = append(s.DeprecatedDomains, splitList(val)...)
	}
	if val := os.Getenv(l.envPrefix + "DISPATCH_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			s.DispatchWorkers = n
		}
	}
}

func splitList(value string) []string {
	items := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	result := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

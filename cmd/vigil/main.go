package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/halcyonops/vigil/internal/certs"
	"github.com/halcyonops/vigil/internal/config"
	vigilerr "github.com/halcyonops/vigil/internal/errors"
	"github.com/halcyonops/vigil/internal/inventory"
	"github.com/halcyonops/vigil/internal/logging"
	"github.com/halcyonops/vigil/internal/models"
	"github.com/halcyonops/vigil/internal/notifications"
	"github.com/halcyonops/vigil/internal/proxy"
	"github.com/halcyonops/vigil/internal/watchdog"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagConfig     string
	flagProbes     []string
	flagDryRun     bool
	flagReportJSON bool
)

var rootCmd = &cobra.Command{
	Use:     "vigil",
	Short:   "Vigil - operational health and lifecycle watchdog",
	Long:    `Vigil scans containers, volumes, certificates, and proxy domains once per invocation, remediates what it safely can, and alerts on the rest.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runWatchdog())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Vigil %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and exit",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := loadSettings(); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(models.ExitConfig)
		}
		fmt.Println("Configuration OK")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.Flags().StringSliceVar(&flagProbes, "probe", nil, "run only the named probes (repeatable)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "evaluate probes but skip all actions")
	rootCmd.Flags().BoolVar(&flagReportJSON, "report", false, "print the run report as JSON on stdout")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(models.ExitConfig)
	}
}

func loadSettings() (*config.Settings, error) {
	// A .env next to the binary can carry tokens the YAML should not.
	_ = godotenv.Load()

	loader := config.NewLoader()
	if flagConfig != "" {
		loader.SetConfigPath(flagConfig)
	}
	return loader.Load()
}

func runWatchdog() int {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "vigil"})

	cfg, err := loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return models.ExitConfig
	}

	logger := logging.Init(logging.Config{
		Format:    cfg.Log.Format,
		Level:     cfg.Log.Level,
		Component: "vigil",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := ulid.Make().String()
	hostname, _ := os.Hostname()
	report := models.NewRunReport(runID, hostname)

	logger.Info().
		Str("run_id", runID).
		Str("version", Version).
		Bool("dry_run", flagDryRun).
		Msg("Starting watchdog invocation")

	probes, err := buildProbes(cfg, logger)
	if err != nil {
		log.Error().Err(err).Msg("Invalid probe selection")
		return models.ExitConfig
	}

	proxyClient := proxy.NewClient(cfg.Proxy.AdminURL, cfg.ProxyTimeout(), logger)
	certClient := certs.NewClient(cfg.Certs.ManagerURL, cfg.Certs.Token, cfg.CertTimeout(), logger)

	inv, closeInventory := buildInventory(cfg, probes, proxyClient, logger)
	defer closeInventory()

	notifier := notifications.New(notifications.Config{
		Webhooks: alertWebhooks(cfg),
		Timeout:  cfg.AlertTimeout(),
		RunID:    runID,
		Hostname: hostname,
		Logger:   logger,
	})

	guard := watchdog.NewGuard()
	dispatcher := watchdog.NewDispatcher(watchdog.DispatcherConfig{
		Guard:  guard,
		Certs:  certClient,
		Proxy:  proxyClient,
		Alerts: notifier,
		Report: report,
		DryRun: flagDryRun,
		Logger: logger,
	})

	engine := watchdog.NewEngine(watchdog.EngineConfig{
		Inventory:  inv,
		Probes:     probes,
		Filter:     watchdog.NewFilter(cfg.Whitelist),
		Dispatcher: dispatcher,
		Guard:      guard,
		Report:     report,
		OneShots:   cfg.OneShotTasks,
		Workers:    cfg.DispatchWorkers,
		Logger:     logger,
	})

	engine.Run(ctx)

	if flagReportJSON {
		if err := json.NewEncoder(os.Stdout).Encode(report); err != nil {
			logger.Error().Err(err).Msg("Failed to encode run report")
		}
	}

	logger.Info().
		Str("run_id", runID).
		Int("findings", len(report.Findings)).
		Int("actionable", report.ActionableFindings()).
		Int("suppressed", len(report.Suppressed)).
		Bool("degraded", report.Degraded).
		Msg("Watchdog invocation finished")

	return report.ExitCode()
}

// buildProbes assembles the enabled probes, narrowed by --probe when given.
func buildProbes(cfg *config.Settings, logger zerolog.Logger) ([]watchdog.Probe, error) {
	var all []watchdog.Probe
	if cfg.Probes.ContainerHealth {
		all = append(all, watchdog.ContainerHealthProbe{})
	}
	if cfg.Probes.OrphanVolumes {
		all = append(all, watchdog.OrphanVolumeProbe{
			BootstrapPrefixes: cfg.Volumes.BootstrapPrefixes,
		})
	}
	if cfg.Probes.CertExpiry {
		all = append(all, watchdog.CertExpiryProbe{
			Threshold: cfg.RenewThreshold(),
			Logger:    logger,
		})
	}
	if cfg.Probes.DeprecatedDomains && len(cfg.DeprecatedDomains) > 0 {
		all = append(all, watchdog.NewDeprecatedDomainProbe(cfg.DeprecatedDomains))
	}

	if len(flagProbes) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(flagProbes))
	for _, name := range flagProbes {
		wanted[strings.TrimSpace(name)] = false
	}
	var selected []watchdog.Probe
	for _, probe := range all {
		if _, ok := wanted[probe.Name()]; ok {
			wanted[probe.Name()] = true
			selected = append(selected, probe)
		}
	}
	for name, found := range wanted {
		if !found {
			return nil, vigilerr.WrapConfig("select_probes", fmt.Errorf("unknown or disabled probe %q", name))
		}
	}
	return selected, nil
}

// buildInventory connects only the backends the selected probes need. A
// runtime connection failure is not fatal here; the affected probes report
// backend-unavailable and the rest of the run proceeds.
func buildInventory(cfg *config.Settings, probes []watchdog.Probe, proxyClient *proxy.Client, logger zerolog.Logger) (*inventory.Inventory, func()) {
	kinds := make(map[models.EntityKind]bool, len(probes))
	for _, probe := range probes {
		kinds[probe.Kind()] = true
	}

	var docker inventory.DockerAPI
	if kinds[models.KindContainer] || kinds[models.KindVolume] {
		connected, err := inventory.ConnectDocker(cfg.Docker.Host)
		if err != nil {
			logger.Warn().Err(err).Msg("Container runtime unavailable")
		} else {
			docker = connected
		}
	}

	var scanner inventory.CertScanner
	if kinds[models.KindCertificate] {
		scanner = certs.NewStore(cfg.Certs.Dir, logger)
	}

	var domains inventory.DomainLister
	if kinds[models.KindDomain] {
		domains = proxyClient
	}

	inv := inventory.New(inventory.Config{
		Docker:  docker,
		Certs:   scanner,
		Domains: domains,
		Timeout: cfg.DockerTimeout(),
		Logger:  logger,
	})

	closeFn := func() {
		if docker != nil {
			if err := docker.Close(); err != nil {
				logger.Debug().Err(err).Msg("Closing container runtime client")
			}
		}
	}
	return inv, closeFn
}

func alertWebhooks(cfg *config.Settings) []notifications.Webhook {
	hooks := make([]notifications.Webhook, 0, len(cfg.Webhooks))
	for _, hook := range cfg.Webhooks {
		hooks = append(hooks, notifications.Webhook{
			Name:    hook.Name,
			URL:     hook.URL,
			Method:  hook.Method,
			Headers: hook.Headers,
		})
	}
	return hooks
}

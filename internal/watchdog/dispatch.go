package watchdog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/halcyonops/vigil/internal/models"
)

// CertActions is the certificate collaborator surface the dispatcher uses.
type CertActions interface {
	Renew(ctx context.Context, domain string) error
	Revoke(ctx context.Context, domain string) error
}

// ProxyActions is the reverse-proxy control-plane surface.
type ProxyActions interface {
	Reload(ctx context.Context) error
	RemoveRoute(ctx context.Context, domain string) error
}

// AlertTransport forwards findings to the shared alerting channel.
type AlertTransport interface {
	Notify(ctx context.Context, finding models.Finding) error
}

// Dispatcher resolves each finding into a remediation or an alert. Every
// action passes through the guard, and every failure escalates to an alert
// rather than disappearing.
type Dispatcher struct {
	guard  *Guard
	certs  CertActions
	proxy  ProxyActions
	alerts AlertTransport
	report *models.RunReport
	dryRun bool
	logger zerolog.Logger

	// proxyDirty is set by deprecated-domain remediations; the engine
	// performs one batched reload per invocation when it is set.
	proxyDirty atomic.Bool
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Guard  *Guard
	Certs  CertActions
	Proxy  ProxyActions
	Alerts AlertTransport
	Report *models.RunReport
	DryRun bool
	Logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for one invocation.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		guard:  cfg.Guard,
		certs:  cfg.Certs,
		proxy:  cfg.Proxy,
		alerts: cfg.Alerts,
		report: cfg.Report,
		dryRun: cfg.DryRun,
		logger: cfg.Logger,
	}
}

// Dispatch handles one finding to a terminal state. Findings are
// independent; a failed dispatch degrades the run but never aborts the
// remaining ones.
func (d *Dispatcher) Dispatch(ctx context.Context, finding models.Finding) {
	switch finding.Disposition {
	case models.DispositionAlert:
		d.alert(ctx, finding)
	case models.DispositionRemediate:
		d.remediate(ctx, finding)
	case models.DispositionNone:
		// Informational only; the finding stays in the report.
	default:
		d.logger.Error().
			Str("probe", finding.Probe).
			Str("disposition", string(finding.Disposition)).
			Msg("Unknown disposition, escalating to alert")
		d.alert(ctx, finding)
	}
}

// ProxyDirty reports whether a remediation invalidated the proxy config.
func (d *Dispatcher) ProxyDirty() bool {
	return d.proxyDirty.Load()
}

// FlushReload performs the single batched proxy reload for this invocation,
// if any remediation made it necessary.
func (d *Dispatcher) FlushReload(ctx context.Context) {
	if !d.proxyDirty.Load() {
		return
	}
	outcome := d.run(ctx, models.Finding{Probe: ProbeDeprecatedDomain}, "proxy", models.ActionProxyReload, func(actionCtx context.Context) error {
		return d.proxy.Reload(actionCtx)
	})
	if outcome == models.OutcomeFailed {
		d.alert(ctx, models.Finding{
			Probe:       ProbeDeprecatedDomain,
			Entity:      models.Entity{Kind: models.KindDomain, ID: "proxy"},
			Severity:    models.SeverityCritical,
			Disposition: models.DispositionAlert,
			Reason:      "proxy reload failed after deprecated-domain remediation",
		})
	}
}

func (d *Dispatcher) alert(ctx context.Context, finding models.Finding) {
	d.run(ctx, finding, finding.Entity.ID, models.ActionAlert, func(actionCtx context.Context) error {
		return d.alerts.Notify(actionCtx, finding)
	})
}

func (d *Dispatcher) remediate(ctx context.Context, finding models.Finding) {
	var failed bool

	switch finding.Entity.Kind {
	case models.KindCertificate:
		outcome := d.run(ctx, finding, finding.Entity.ID, models.ActionCertRenew, func(actionCtx context.Context) error {
			return d.certs.Renew(actionCtx, finding.Entity.ID)
		})
		failed = outcome == models.OutcomeFailed

	case models.KindDomain:
		revoke := d.run(ctx, finding, finding.Entity.ID, models.ActionCertRevoke, func(actionCtx context.Context) error {
			return d.certs.Revoke(actionCtx, finding.Entity.ID)
		})
		remove := d.run(ctx, finding, finding.Entity.ID, models.ActionRouteRemove, func(actionCtx context.Context) error {
			return d.proxy.RemoveRoute(actionCtx, finding.Entity.ID)
		})
		if remove == models.OutcomeSuccess {
			d.proxyDirty.Store(true)
		}
		failed = revoke == models.OutcomeFailed || remove == models.OutcomeFailed

	default:
		d.logger.Error().
			Str("probe", finding.Probe).
			Str("kind", string(finding.Entity.Kind)).
			Msg("No remediation available for entity kind, escalating to alert")
		d.alert(ctx, finding)
		return
	}

	// A failed remediation never fails silently: the signal escalates to
	// the alerting channel and the next scheduled run retries.
	if failed {
		escalated := finding
		escalated.Severity = models.SeverityCritical
		escalated.Disposition = models.DispositionAlert
		escalated.Reason = fmt.Sprintf("remediation failed: %s", finding.Reason)
		d.alert(ctx, escalated)
	}
}

// run executes one guarded action and records its outcome.
func (d *Dispatcher) run(ctx context.Context, finding models.Finding, entityID string, action models.ActionKind, fn func(ctx context.Context) error) models.Outcome {
	record := models.ActionRecord{
		ID:        uuid.NewString(),
		Probe:     finding.Probe,
		EntityID:  entityID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}

	if d.dryRun {
		record.Outcome = models.OutcomeSkippedDryRun
		record.Detail = "dry run"
		d.report.AddAction(record)
		return record.Outcome
	}

	outcome, err := d.guard.Do(ctx, GuardKey(entityID, finding.Probe, action), fn)
	record.Outcome = outcome
	if err != nil && outcome != models.OutcomeSkippedDuplicate {
		record.Detail = err.Error()
		d.logger.Warn().
			Str("probe", finding.Probe).
			Str("entity", entityID).
			Str("action", string(action)).
			Err(err).
			Msg("Action failed")
	} else {
		d.logger.Info().
			Str("probe", finding.Probe).
			Str("entity", entityID).
			Str("action", string(action)).
			Str("outcome", string(outcome)).
			Msg("Action dispatched")
	}

	d.report.AddAction(record)
	return outcome
}

package watchdog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/halcyonops/vigil/internal/models"
)

// Probe names, used as idempotency-key components and report keys.
const (
	ProbeContainerHealth  = "container-health"
	ProbeOrphanVolume     = "orphan-volume"
	ProbeCertExpiry       = "cert-expiry"
	ProbeDeprecatedDomain = "deprecated-domain"
)

// Probe inspects one kind's inventory slice and yields findings. Probes are
// read-only; a probe that cannot evaluate returns an error that is recorded
// against it alone and never blocks the other probes.
type Probe interface {
	Name() string
	Kind() models.EntityKind
	Evaluate(ctx context.Context, entities []models.Entity) ([]models.Finding, error)
}

// ContainerHealthProbe flags containers that report an unhealthy healthcheck
// or terminated with a non-zero exit code.
type ContainerHealthProbe struct{}

func (ContainerHealthProbe) Name() string            { return ProbeContainerHealth }
func (ContainerHealthProbe) Kind() models.EntityKind { return models.KindContainer }

func (p ContainerHealthProbe) Evaluate(ctx context.Context, entities []models.Entity) ([]models.Finding, error) {
	var findings []models.Finding
	for _, entity := range entities {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if entity.Meta(models.MetaHealth) == "unhealthy" {
			findings = append(findings, models.Finding{
				Probe:       p.Name(),
				Entity:      entity,
				Severity:    models.SeverityCritical,
				Disposition: models.DispositionAlert,
				Reason:      fmt.Sprintf("container %s reports unhealthy", entity.DisplayName()),
			})
			continue
		}

		if entity.State == "exited" || entity.State == "dead" {
			code := entity.Meta(models.MetaExitCode)
			if code != "" && code != "0" {
				findings = append(findings, models.Finding{
					Probe:       p.Name(),
					Entity:      entity,
					Severity:    models.SeverityCritical,
					Disposition: models.DispositionAlert,
					Reason:      fmt.Sprintf("container %s terminated with exit code %s", entity.DisplayName(), code),
				})
			}
		}
	}
	return findings, nil
}

// OrphanVolumeProbe flags anonymous volumes (64-hex names) with no attached
// containers. The naming heuristic and the bootstrap-path exclusions are
// configuration, not guarantees from the runtime.
type OrphanVolumeProbe struct {
	// BootstrapPrefixes excludes volumes whose mountpoint sits under a
	// known bootstrap path.
	BootstrapPrefixes []string
}

func (OrphanVolumeProbe) Name() string            { return ProbeOrphanVolume }
func (OrphanVolumeProbe) Kind() models.EntityKind { return models.KindVolume }

func (p OrphanVolumeProbe) Evaluate(ctx context.Context, entities []models.Entity) ([]models.Finding, error) {
	var findings []models.Finding
	for _, entity := range entities {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isAnonymousVolumeName(entity.ID) {
			continue
		}
		if entity.Meta(models.MetaRefCount) != "0" {
			continue
		}
		if p.isBootstrapMount(entity.Meta(models.MetaMountpoint)) {
			continue
		}

		findings = append(findings, models.Finding{
			Probe:       p.Name(),
			Entity:      entity,
			Severity:    models.SeverityActionable,
			Disposition: models.DispositionAlert,
			Reason:      fmt.Sprintf("anonymous volume %s has no attached containers", shortID(entity.ID)),
		})
	}
	return findings, nil
}

func (p OrphanVolumeProbe) isBootstrapMount(mountpoint string) bool {
	if mountpoint == "" {
		return false
	}
	for _, prefix := range p.BootstrapPrefixes {
		if prefix != "" && strings.HasPrefix(mountpoint, prefix) {
			return true
		}
	}
	return false
}

func isAnonymousVolumeName(name string) bool {
	if len(name) != 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// CertExpiryProbe flags certificates entering the renewal window.
type CertExpiryProbe struct {
	Threshold time.Duration
	Logger    zerolog.Logger

	// now is swapped in tests.
	now func() time.Time
}

func (CertExpiryProbe) Name() string            { return ProbeCertExpiry }
func (CertExpiryProbe) Kind() models.EntityKind { return models.KindCertificate }

func (p CertExpiryProbe) Evaluate(ctx context.Context, entities []models.Entity) ([]models.Finding, error) {
	nowFn := p.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	var findings []models.Finding
	for _, entity := range entities {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		raw := entity.Meta(models.MetaNotAfter)
		notAfter, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			// Malformed entity data skips the entity, not the probe.
			p.Logger.Warn().
				Str("certificate", entity.DisplayName()).
				Str("not_after", raw).
				Err(err).
				Msg("Skipping certificate with unparseable expiry")
			continue
		}

		remaining := notAfter.Sub(now)
		if remaining > p.Threshold {
			continue
		}

		reason := fmt.Sprintf("certificate for %s expires in %s", entity.DisplayName(), formatRemaining(remaining))
		if remaining <= 0 {
			reason = fmt.Sprintf("certificate for %s has already expired", entity.DisplayName())
		}

		findings = append(findings, models.Finding{
			Probe:       p.Name(),
			Entity:      entity,
			Severity:    models.SeverityActionable,
			Disposition: models.DispositionRemediate,
			Reason:      reason,
		})
	}
	return findings, nil
}

func formatRemaining(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return d.Round(time.Minute).String()
}

// DeprecatedDomainProbe flags domains the proxy still serves although they
// have been retired from the deployment catalog.
type DeprecatedDomainProbe struct {
	Deprecated map[string]struct{}
}

// NewDeprecatedDomainProbe builds the probe from the configured domain list.
func NewDeprecatedDomainProbe(domains []string) DeprecatedDomainProbe {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		set[strings.ToLower(strings.TrimSpace(domain))] = struct{}{}
	}
	return DeprecatedDomainProbe{Deprecated: set}
}

func (DeprecatedDomainProbe) Name() string            { return ProbeDeprecatedDomain }
func (DeprecatedDomainProbe) Kind() models.EntityKind { return models.KindDomain }

func (p DeprecatedDomainProbe) Evaluate(ctx context.Context, entities []models.Entity) ([]models.Finding, error) {
	var findings []models.Finding
	for _, entity := range entities {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if _, ok := p.Deprecated[strings.ToLower(entity.ID)]; !ok {
			continue
		}

		findings = append(findings, models.Finding{
			Probe:       p.Name(),
			Entity:      entity,
			Severity:    models.SeverityInfo,
			Disposition: models.DispositionRemediate,
			Reason:      fmt.Sprintf("deprecated domain %s still has a live route and certificate", entity.ID),
		})
	}
	return findings, nil
}

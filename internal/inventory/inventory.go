// Package inventory snapshots the observable infrastructure state for one
// watchdog invocation: containers and volumes from the container runtime,
// certificates from the filesystem, and domains from the reverse proxy.
//
// Listings are read-only. A backend failure is scoped to its entity kind and
// reported as a backend-unavailable error; it never aborts collection for
// the other kinds.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	vigilerr "github.com/halcyonops/vigil/internal/errors"
	"github.com/halcyonops/vigil/internal/models"
)

// CertScanner provides certificate entities, typically from a PEM directory.
type CertScanner interface {
	Scan(ctx context.Context) ([]models.Entity, error)
}

// DomainLister reports the domains the reverse proxy currently serves.
type DomainLister interface {
	Domains(ctx context.Context) ([]string, error)
}

// Inventory fans listing requests out to the configured backends.
type Inventory struct {
	docker  DockerAPI
	certs   CertScanner
	domains DomainLister
	timeout time.Duration
	logger  zerolog.Logger
}

// Config wires the inventory's backends. Nil backends make the matching
// kinds report backend-unavailable rather than failing construction, so a
// partially configured watchdog can still run its other probes.
type Config struct {
	Docker  DockerAPI
	Certs   CertScanner
	Domains DomainLister
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New creates an inventory over the given backends.
func New(cfg Config) *Inventory {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Inventory{
		docker:  cfg.Docker,
		certs:   cfg.Certs,
		domains: cfg.Domains,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// List returns a fresh snapshot of all entities of one kind. The snapshot is
// owned by the caller; nothing is cached across invocations.
func (inv *Inventory) List(ctx context.Context, kind models.EntityKind) ([]models.Entity, error) {
	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	switch kind {
	case models.KindContainer:
		if inv.docker == nil {
			return nil, vigilerr.WrapBackend("list_containers", kind, errNotConfigured)
		}
		return inv.listContainers(callCtx)
	case models.KindVolume:
		if inv.docker == nil {
			return nil, vigilerr.WrapBackend("list_volumes", kind, errNotConfigured)
		}
		return inv.listVolumes(callCtx)
	case models.KindCertificate:
		if inv.certs == nil {
			return nil, vigilerr.WrapBackend("scan_certificates", kind, errNotConfigured)
		}
		entities, err := inv.certs.Scan(callCtx)
		if err != nil {
			return nil, vigilerr.WrapBackend("scan_certificates", kind, err)
		}
		return entities, nil
	case models.KindDomain:
		if inv.domains == nil {
			return nil, vigilerr.WrapBackend("list_domains", kind, errNotConfigured)
		}
		return inv.listDomains(callCtx)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (inv *Inventory) listDomains(ctx context.Context) ([]models.Entity, error) {
	domains, err := inv.domains.Domains(ctx)
	if err != nil {
		return nil, vigilerr.WrapBackend("list_domains", models.KindDomain, err)
	}

	entities := make([]models.Entity, 0, len(domains))
	for _, domain := range domains {
		entities = append(entities, models.Entity{
			Kind:  models.KindDomain,
			ID:    domain,
			Name:  domain,
			State: "served",
		})
	}
	return entities, nil
}

package watchdog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/halcyonops/vigil/internal/models"
)

type fakeCerts struct {
	renewErr  error
	revokeErr error
	renewed   []string
	revoked   []string
	mu        sync.Mutex
}

func (f *fakeCerts) Renew(_ context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewed = append(f.renewed, domain)
	return f.renewErr
}

func (f *fakeCerts) Revoke(_ context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, domain)
	return f.revokeErr
}

type fakeProxy struct {
	reloadErr error
	removeErr error
	reloads   atomic.Int32
	removed   []string
	mu        sync.Mutex
}

func (f *fakeProxy) Reload(context.Context) error {
	f.reloads.Add(1)
	return f.reloadErr
}

func (f *fakeProxy) RemoveRoute(_ context.Context, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, domain)
	return f.removeErr
}

type fakeAlerts struct {
	err      error
	notified []models.Finding
	mu       sync.Mutex
}

func (f *fakeAlerts) Notify(_ context.Context, finding models.Finding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, finding)
	return f.err
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notified)
}

type fakeInventory struct {
	entities map[models.EntityKind][]models.Entity
	errs     map[models.EntityKind]error
}

func (f *fakeInventory) List(_ context.Context, kind models.EntityKind) ([]models.Entity, error) {
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f.entities[kind], nil
}

func actionsByKind(report *models.RunReport, action models.ActionKind) []models.ActionRecord {
	var out []models.ActionRecord
	for _, rec := range report.Actions {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

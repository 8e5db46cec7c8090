package watchdog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/halcyonops/vigil/internal/models"
)

func newTestDispatcher(report *models.RunReport, certs *fakeCerts, proxy *fakeProxy, alerts *fakeAlerts) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Guard:  NewGuard(),
		Certs:  certs,
		Proxy:  proxy,
		Alerts: alerts,
		Report: report,
		Logger: zerolog.Nop(),
	})
}

func alertFinding(id string) models.Finding {
	return models.Finding{
		Probe:       ProbeContainerHealth,
		Entity:      models.Entity{Kind: models.KindContainer, ID: id},
		Severity:    models.SeverityCritical,
		Disposition: models.DispositionAlert,
		Reason:      "container is unhealthy",
	}
}

func TestDispatchAlertSuccess(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	alerts := &fakeAlerts{}
	d := newTestDispatcher(report, &fakeCerts{}, &fakeProxy{}, alerts)

	d.Dispatch(context.Background(), alertFinding("c1"))

	if alerts.count() != 1 {
		t.Fatalf("notified %d times, want 1", alerts.count())
	}
	recs := actionsByKind(report, models.ActionAlert)
	if len(recs) != 1 || recs[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("records = %+v", recs)
	}
	if report.Degraded {
		t.Fatal("successful alert must not degrade the run")
	}
}

func TestDispatchAlertFailureDegradesRun(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	alerts := &fakeAlerts{err: errors.New("transport down")}
	d := newTestDispatcher(report, &fakeCerts{}, &fakeProxy{}, alerts)

	d.Dispatch(context.Background(), alertFinding("c1"))

	recs := actionsByKind(report, models.ActionAlert)
	if len(recs) != 1 || recs[0].Outcome != models.OutcomeFailed {
		t.Fatalf("records = %+v", recs)
	}
	if !report.Degraded {
		t.Fatal("failed alert must degrade the run")
	}
}

func TestDispatchRenewSuccess(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	certs := &fakeCerts{}
	alerts := &fakeAlerts{}
	d := newTestDispatcher(report, certs, &fakeProxy{}, alerts)

	d.Dispatch(context.Background(), models.Finding{
		Probe:       ProbeCertExpiry,
		Entity:      models.Entity{Kind: models.KindCertificate, ID: "old.example"},
		Severity:    models.SeverityActionable,
		Disposition: models.DispositionRemediate,
		Reason:      "certificate expiring",
	})

	if len(certs.renewed) != 1 || certs.renewed[0] != "old.example" {
		t.Fatalf("renewed = %v", certs.renewed)
	}
	if alerts.count() != 0 {
		t.Fatal("successful renewal must not raise an alert")
	}
	recs := actionsByKind(report, models.ActionCertRenew)
	if len(recs) != 1 || recs[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDispatchRenewFailureEscalatesToAlert(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	certs := &fakeCerts{renewErr: errors.New("acme unreachable")}
	alerts := &fakeAlerts{}
	d := newTestDispatcher(report, certs, &fakeProxy{}, alerts)

	d.Dispatch(context.Background(), models.Finding{
		Probe:       ProbeCertExpiry,
		Entity:      models.Entity{Kind: models.KindCertificate, ID: "old.example"},
		Disposition: models.DispositionRemediate,
		Reason:      "certificate expiring",
	})

	if alerts.count() != 1 {
		t.Fatalf("expected escalation alert, notified %d times", alerts.count())
	}
	if !report.Degraded {
		t.Fatal("failed remediation must degrade the run")
	}
	renews := actionsByKind(report, models.ActionCertRenew)
	if len(renews) != 1 || renews[0].Outcome != models.OutcomeFailed {
		t.Fatalf("renew records = %+v", renews)
	}
}

func TestDispatchDeprecatedDomainBatchesReload(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	certs := &fakeCerts{}
	proxy := &fakeProxy{}
	d := newTestDispatcher(report, certs, proxy, &fakeAlerts{})

	for _, domain := range []string{"legacy.example", "gone.example"} {
		d.Dispatch(context.Background(), models.Finding{
			Probe:       ProbeDeprecatedDomain,
			Entity:      models.Entity{Kind: models.KindDomain, ID: domain},
			Disposition: models.DispositionRemediate,
			Reason:      "deprecated domain",
		})
	}
	d.FlushReload(context.Background())
	d.FlushReload(context.Background()) // second flush must not reload again

	if got := proxy.reloads.Load(); got != 1 {
		t.Fatalf("proxy reloaded %d times, want exactly 1", got)
	}
	if len(certs.revoked) != 2 || len(proxy.removed) != 2 {
		t.Fatalf("revoked=%v removed=%v", certs.revoked, proxy.removed)
	}
	reloads := actionsByKind(report, models.ActionProxyReload)
	if len(reloads) != 2 {
		t.Fatalf("expected reload + duplicate-skip records, got %+v", reloads)
	}
	if reloads[1].Outcome != models.OutcomeSkippedDuplicate {
		t.Fatalf("second reload record = %+v", reloads[1])
	}
}

func TestDispatchDuplicateFindingSkips(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	alerts := &fakeAlerts{}
	d := newTestDispatcher(report, &fakeCerts{}, &fakeProxy{}, alerts)

	d.Dispatch(context.Background(), alertFinding("c1"))
	d.Dispatch(context.Background(), alertFinding("c1"))

	if alerts.count() != 1 {
		t.Fatalf("notified %d times, want 1", alerts.count())
	}
	recs := actionsByKind(report, models.ActionAlert)
	if len(recs) != 2 || recs[1].Outcome != models.OutcomeSkippedDuplicate {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDispatchDryRunSkipsEverything(t *testing.T) {
	report := models.NewRunReport("r1", "host")
	certs := &fakeCerts{}
	alerts := &fakeAlerts{}
	d := NewDispatcher(DispatcherConfig{
		Guard:  NewGuard(),
		Certs:  certs,
		Proxy:  &fakeProxy{},
		Alerts: alerts,
		Report: report,
		DryRun: true,
		Logger: zerolog.Nop(),
	})

	d.Dispatch(context.Background(), alertFinding("c1"))
	d.Dispatch(context.Background(), models.Finding{
		Probe:       ProbeCertExpiry,
		Entity:      models.Entity{Kind: models.KindCertificate, ID: "old.example"},
		Disposition: models.DispositionRemediate,
	})

	if alerts.count() != 0 || len(certs.renewed) != 0 {
		t.Fatal("dry run must not perform side effects")
	}
	for _, rec := range report.Actions {
		if rec.Outcome != models.OutcomeSkippedDryRun {
			t.Fatalf("record outcome = %s, want skipped-dry-run", rec.Outcome)
		}
	}
}

package watchdog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/halcyonops/vigil/internal/config"
	"github.com/halcyonops/vigil/internal/models"
)

// InventorySource provides the entity snapshot for one kind.
type InventorySource interface {
	List(ctx context.Context, kind models.EntityKind) ([]models.Entity, error)
}

// Engine drives one watchdog invocation: snapshot, probe, filter, dispatch,
// report. It holds no state across invocations.
type Engine struct {
	inventory  InventorySource
	probes     []Probe
	filter     *Filter
	dispatcher *Dispatcher
	guard      *Guard
	report     *models.RunReport
	oneShots   []config.OneShotTask
	workers    int
	httpClient *http.Client
	logger     zerolog.Logger
}

// EngineConfig wires an Engine for one invocation.
type EngineConfig struct {
	Inventory  InventorySource
	Probes     []Probe
	Filter     *Filter
	Dispatcher *Dispatcher
	Guard      *Guard
	Report     *models.RunReport
	OneShots   []config.OneShotTask
	Workers    int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Engine{
		inventory:  cfg.Inventory,
		probes:     cfg.Probes,
		filter:     cfg.Filter,
		dispatcher: cfg.Dispatcher,
		guard:      cfg.Guard,
		report:     cfg.Report,
		oneShots:   cfg.OneShots,
		workers:    workers,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Run executes the invocation and returns the finalized report. Probe and
// backend failures degrade the report; only the caller's context expiring
// stops work early, and even then actions already claimed by the guard run
// to completion.
func (e *Engine) Run(ctx context.Context) *models.RunReport {
	findings := e.evaluateProbes(ctx)
	e.dispatchFindings(ctx, findings)
	e.runOneShotTasks(ctx)
	e.dispatcher.FlushReload(ctx)

	e.report.Finalize()
	return e.report
}

// evaluateProbes runs every enabled probe concurrently. Probes are isolated:
// each failure is recorded against the failing probe and the others keep
// running.
func (e *Engine) evaluateProbes(ctx context.Context) []models.Finding {
	var (
		group, groupCtx = errgroup.WithContext(ctx)
		results         = make([][]models.Finding, len(e.probes))
	)

	for i, probe := range e.probes {
		group.Go(func() error {
			entities, err := e.inventory.List(groupCtx, probe.Kind())
			if err != nil {
				e.logger.Warn().Str("probe", probe.Name()).Err(err).Msg("Inventory unavailable for probe")
				e.report.RecordProbeError(probe.Name(), err)
				return nil
			}
			e.report.RecordScan(probe.Kind(), len(entities))

			kept, suppressed := e.filter.Split(probe.Kind(), entities)
			if len(suppressed) > 0 {
				e.report.AddSuppressed(suppressed...)
				e.logger.Debug().
					Str("probe", probe.Name()).
					Int("suppressed", len(suppressed)).
					Msg("Whitelist suppressed entities")
			}

			found, err := probe.Evaluate(groupCtx, kept)
			if err != nil {
				e.logger.Warn().Str("probe", probe.Name()).Err(err).Msg("Probe evaluation failed")
				e.report.RecordProbeError(probe.Name(), err)
				return nil
			}

			e.report.AddFindings(found...)
			results[i] = found

			e.logger.Info().
				Str("probe", probe.Name()).
				Int("scanned", len(entities)).
				Int("findings", len(found)).
				Msg("Probe completed")
			return nil
		})
	}

	// Probes never return errors through the group; Wait only observes
	// context cancellation.
	_ = group.Wait()

	var findings []models.Finding
	for _, probeFindings := range results {
		findings = append(findings, probeFindings...)
	}
	return findings
}

// dispatchFindings resolves findings concurrently with bounded parallelism.
// Outcomes are order-independent; the guard serializes only same-key work.
func (e *Engine) dispatchFindings(ctx context.Context, findings []models.Finding) {
	if len(findings) == 0 {
		return
	}

	group := new(errgroup.Group)
	group.SetLimit(e.workers)
	for _, finding := range findings {
		group.Go(func() error {
			e.dispatcher.Dispatch(ctx, finding)
			return nil
		})
	}
	_ = group.Wait()
}

// runOneShotTasks executes configured setup tasks under constant guard keys,
// so a retried invocation cannot apply them twice.
func (e *Engine) runOneShotTasks(ctx context.Context) {
	for _, task := range e.oneShots {
		record := models.ActionRecord{
			ID:        uuid.NewString(),
			Probe:     "one-shot",
			EntityID:  task.Name,
			Action:    models.ActionOneShot,
			Timestamp: time.Now().UTC(),
		}

		outcome, err := e.guard.Do(ctx, OneShotKey(task.Name), func(actionCtx context.Context) error {
			return e.executeOneShot(actionCtx, task)
		})
		record.Outcome = outcome
		if err != nil {
			record.Detail = err.Error()
			e.logger.Warn().Str("task", task.Name).Err(err).Msg("One-shot task failed")
		}
		e.report.AddAction(record)
	}
}

func (e *Engine) executeOneShot(ctx context.Context, task config.OneShotTask) error {
	method := task.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, task.URL, strings.NewReader(task.Body))
	if err != nil {
		return err
	}
	for key, value := range task.Headers {
		req.Header.Set(key, value)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &oneShotStatusError{task: task.Name, status: resp.StatusCode}
	}
	return nil
}

type oneShotStatusError struct {
	task   string
	status int
}

func (e *oneShotStatusError) Error() string {
	return fmt.Sprintf("one-shot task %s: unexpected status %d", e.task, e.status)
}

package models

import (
	"sync"
	"time"
)

// Exit codes reported to the scheduler.
const (
	ExitClean    = 0
	ExitDegraded = 1
	ExitConfig   = 2
)

// RunReport aggregates everything one invocation did. The engine is the only
// writer; once Finalize has been called the report is read-only.
type RunReport struct {
	mu sync.Mutex

	ID          string             `json:"id"`
	Hostname    string             `json:"hostname,omitempty"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
	Scanned     map[EntityKind]int `json:"scanned"`
	Findings    []Finding          `json:"findings"`
	Suppressed  []Entity           `json:"suppressed,omitempty"`
	Actions     []ActionRecord     `json:"actions"`
	ProbeErrors map[string]string  `json:"probeErrors,omitempty"`
	Degraded    bool               `json:"degraded"`
}

// NewRunReport starts an empty report for one invocation.
func NewRunReport(id, hostname string) *RunReport {
	return &RunReport{
		ID:          id,
		Hostname:    hostname,
		StartedAt:   time.Now().UTC(),
		Scanned:     make(map[EntityKind]int),
		Findings:    make([]Finding, 0),
		Actions:     make([]ActionRecord, 0),
		ProbeErrors: make(map[string]string),
	}
}

// RecordScan notes how many entities of a kind the inventory returned.
func (r *RunReport) RecordScan(kind EntityKind, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scanned[kind] = count
}

// AddFindings appends a probe's findings.
func (r *RunReport) AddFindings(findings ...Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Findings = append(r.Findings, findings...)
}

// AddSuppressed notes entities the whitelist removed from a probe's view.
func (r *RunReport) AddSuppressed(entities ...Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Suppressed = append(r.Suppressed, entities...)
}

// AddAction appends a dispatched action's record. A failed outcome marks the
// run degraded.
func (r *RunReport) AddAction(rec ActionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Actions = append(r.Actions, rec)
	if rec.Outcome == OutcomeFailed {
		r.Degraded = true
	}
}

// RecordProbeError marks a probe as failed without aborting the run.
func (r *RunReport) RecordProbeError(probe string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ProbeErrors[probe] = err.Error()
	r.Degraded = true
}

// Finalize stamps the end time. Further mutation is a programming error.
func (r *RunReport) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
}

// ActionableFindings counts findings that demanded remediation or alerting.
func (r *RunReport) ActionableFindings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.Findings {
		if f.Disposition != DispositionNone {
			n++
		}
	}
	return n
}

// ExitCode maps the report onto the process exit status contract:
// 0 means nothing actionable was found and nothing failed.
func (r *RunReport) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Degraded {
		return ExitDegraded
	}
	for _, f := range r.Findings {
		if f.Disposition != DispositionNone {
			return ExitDegraded
		}
	}
	return ExitClean
}

package models

import "time"

// Severity grades how urgent a finding is.
type Severity string

const (
	SeverityInfo       Severity = "info"
	SeverityActionable Severity = "actionable"
	SeverityCritical   Severity = "critical"
)

// Disposition is a probe's suggested handling for a finding.
type Disposition string

const (
	DispositionNone      Disposition = "none"
	DispositionRemediate Disposition = "remediate"
	DispositionAlert     Disposition = "alert"
)

// Finding is one flagged anomaly. Immutable after the probe creates it.
type Finding struct {
	Probe       string      `json:"probe"`
	Entity      Entity      `json:"entity"`
	Severity    Severity    `json:"severity"`
	Disposition Disposition `json:"disposition"`
	Reason      string      `json:"reason"`
}

// ActionKind names the concrete side effect the dispatcher performed.
type ActionKind string

const (
	ActionAlert       ActionKind = "alert"
	ActionProxyReload ActionKind = "proxy-reload"
	ActionCertRenew   ActionKind = "cert-renew"
	ActionCertRevoke  ActionKind = "cert-revoke"
	ActionRouteRemove ActionKind = "route-remove"
	ActionOneShot     ActionKind = "one-shot"
)

// Outcome is the terminal result of one dispatched action.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkippedDuplicate Outcome = "skipped-duplicate"
	OutcomeSkippedDryRun    Outcome = "skipped-dry-run"
)

// ActionRecord documents that an action was attempted for a finding.
// At most one non-duplicate record exists per (entity, probe, action)
// within an invocation.
type ActionRecord struct {
	ID        string     `json:"id"`
	Probe     string     `json:"probe"`
	EntityID  string     `json:"entityId"`
	Action    ActionKind `json:"action"`
	Outcome   Outcome    `json:"outcome"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

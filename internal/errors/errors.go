package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/halcyonops/vigil/internal/models"
)

// Base error types
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrProbeEvaluation    = errors.New("probe evaluation failed")
	ErrActionFailed       = errors.New("action failed")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeBackend       ErrorType = "backend_unavailable"
	ErrorTypeEvaluation    ErrorType = "probe_evaluation"
	ErrorTypeAction        ErrorType = "action_failed"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeTimeout       ErrorType = "timeout"
)

// WatchdogError is a structured error for watchdog operations. Backend and
// evaluation errors are contained at the probe boundary; configuration
// errors are fatal to the whole invocation.
type WatchdogError struct {
	Type      ErrorType
	Op        string            // Operation that failed (e.g., "list_containers", "renew_cert")
	Kind      models.EntityKind // Entity kind the operation concerned, if any
	Entity    string            // Entity identifier, if the failure is entity-scoped
	Err       error             // Underlying error
	Timestamp time.Time
}

func (e *WatchdogError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Kind, e.Entity, e.Err)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s failed for kind %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *WatchdogError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *WatchdogError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrBackendUnavailable:
		return e.Type == ErrorTypeBackend
	case ErrProbeEvaluation:
		return e.Type == ErrorTypeEvaluation
	case ErrActionFailed:
		return e.Type == ErrorTypeAction
	case ErrConfiguration:
		return e.Type == ErrorTypeConfiguration
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	}

	return errors.Is(e.Err, target)
}

// New creates a new WatchdogError
func New(errorType ErrorType, op string, err error) *WatchdogError {
	return &WatchdogError{
		Type:      errorType,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithKind scopes the error to an entity kind.
func (e *WatchdogError) WithKind(kind models.EntityKind) *WatchdogError {
	e.Kind = kind
	return e
}

// WithEntity scopes the error to one entity.
func (e *WatchdogError) WithEntity(id string) *WatchdogError {
	e.Entity = id
	return e
}

// Helper constructors

// WrapBackend wraps an inventory backend failure; non-fatal to the run.
func WrapBackend(op string, kind models.EntityKind, err error) error {
	return New(ErrorTypeBackend, op, err).WithKind(kind)
}

// WrapEvaluation wraps a probe's own logic failure on malformed entity data.
func WrapEvaluation(op, entity string, err error) error {
	return New(ErrorTypeEvaluation, op, err).WithEntity(entity)
}

// WrapAction wraps a remediation or alert dispatch failure.
func WrapAction(op, entity string, err error) error {
	return New(ErrorTypeAction, op, err).WithEntity(entity)
}

// WrapConfig wraps a configuration failure; fatal to the entire invocation.
func WrapConfig(op string, err error) error {
	return New(ErrorTypeConfiguration, op, err)
}

// IsBackendUnavailable reports whether err is a contained backend failure.
func IsBackendUnavailable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// IsConfiguration reports whether err must abort the invocation.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

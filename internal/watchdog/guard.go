package watchdog

import (
	"context"
	"fmt"
	"sync"

	"github.com/halcyonops/vigil/internal/models"
)

// Guard executes an action at most once per key within one invocation.
// Cross-invocation safety comes from the actions themselves being idempotent
// at the target system; the guard only has to prevent duplication inside a
// single run, including across concurrently dispatched findings.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*guardEntry
}

type guardEntry struct {
	mu      sync.Mutex
	done    bool
	outcome models.Outcome
	err     error
}

// NewGuard creates an empty guard. Its key table is the only mutable state
// shared between concurrent dispatches.
func NewGuard() *Guard {
	return &Guard{entries: make(map[string]*guardEntry)}
}

// GuardKey builds the idempotency key for an entity-scoped action.
func GuardKey(entityID, probe string, action models.ActionKind) string {
	return fmt.Sprintf("%s|%s|%s", entityID, probe, action)
}

// OneShotKey builds the constant key for a named one-shot setup task.
func OneShotKey(name string) string {
	return "one-shot|" + name
}

// Do runs fn under key. The first caller executes fn and its result becomes
// the key's outcome; later callers get skipped-duplicate together with the
// first execution's error, without fn running again.
//
// Locking is per key: the map lock is held only to resolve the entry, so
// unrelated keys never serialize against each other. Once a key is claimed
// fn runs on a context that survives cancellation of the invocation, so a
// remediation in flight is never left half applied.
func (g *Guard) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (models.Outcome, error) {
	g.mu.Lock()
	entry, ok := g.entries[key]
	if !ok {
		entry = &guardEntry{}
		g.entries[key] = entry
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.done {
		return models.OutcomeSkippedDuplicate, entry.err
	}

	// A cancelled invocation starts no new actions; the key stays
	// unclaimed so the next scheduled run retries the detection.
	if err := ctx.Err(); err != nil {
		return models.OutcomeFailed, err
	}

	err := fn(context.WithoutCancel(ctx))

	entry.done = true
	entry.err = err
	if err != nil {
		entry.outcome = models.OutcomeFailed
	} else {
		entry.outcome = models.OutcomeSuccess
	}

	return entry.outcome, err
}

// Seen reports whether key has already been claimed.
func (g *Guard) Seen(key string) bool {
	g.mu.Lock()
	entry, ok := g.entries[key]
	g.mu.Unlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.done
}

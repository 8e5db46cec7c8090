package watchdog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/halcyonops/vigil/internal/models"
)

func TestGuardExecutesOnce(t *testing.T) {
	guard := NewGuard()
	key := GuardKey("c1", ProbeContainerHealth, models.ActionAlert)

	var calls atomic.Int32
	action := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	outcome, err := guard.Do(context.Background(), key, action)
	if err != nil || outcome != models.OutcomeSuccess {
		t.Fatalf("first call: outcome=%s err=%v", outcome, err)
	}

	outcome, err = guard.Do(context.Background(), key, action)
	if outcome != models.OutcomeSkippedDuplicate {
		t.Fatalf("second call outcome = %s, want skipped-duplicate", outcome)
	}
	if err != nil {
		t.Fatalf("second call should return the prior (nil) error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("action executed %d times, want 1", calls.Load())
	}
}

func TestGuardReturnsPriorFailure(t *testing.T) {
	guard := NewGuard()
	key := OneShotKey("theme-injection")
	boom := errors.New("boom")

	outcome, err := guard.Do(context.Background(), key, func(context.Context) error { return boom })
	if outcome != models.OutcomeFailed || !errors.Is(err, boom) {
		t.Fatalf("first call: outcome=%s err=%v", outcome, err)
	}

	outcome, err = guard.Do(context.Background(), key, func(context.Context) error {
		t.Fatal("must not re-invoke after terminal outcome")
		return nil
	})
	if outcome != models.OutcomeSkippedDuplicate || !errors.Is(err, boom) {
		t.Fatalf("second call: outcome=%s err=%v", outcome, err)
	}
}

func TestGuardDistinctKeysAreIndependent(t *testing.T) {
	guard := NewGuard()

	var calls atomic.Int32
	action := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	for _, key := range []string{
		GuardKey("c1", ProbeContainerHealth, models.ActionAlert),
		GuardKey("c2", ProbeContainerHealth, models.ActionAlert),
		GuardKey("c1", ProbeOrphanVolume, models.ActionAlert),
		GuardKey("c1", ProbeContainerHealth, models.ActionCertRenew),
	} {
		if outcome, _ := guard.Do(context.Background(), key, action); outcome != models.OutcomeSuccess {
			t.Fatalf("key %s: outcome = %s", key, outcome)
		}
	}
	if calls.Load() != 4 {
		t.Fatalf("expected 4 executions, got %d", calls.Load())
	}
}

func TestGuardConcurrentCallsSameKey(t *testing.T) {
	guard := NewGuard()
	key := GuardKey("v1", ProbeOrphanVolume, models.ActionAlert)

	var calls atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guard.Do(context.Background(), key, func(context.Context) error {
				calls.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("action executed %d times under concurrency, want 1", calls.Load())
	}
}

func TestGuardCancelledContextStartsNothing(t *testing.T) {
	guard := NewGuard()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := guard.Do(ctx, "key", func(context.Context) error {
		t.Fatal("cancelled invocation must not start new actions")
		return nil
	})
	if outcome != models.OutcomeFailed || err == nil {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}

	// The key stays unclaimed for the next invocation's retry.
	if guard.Seen("key") {
		t.Fatal("cancelled call must not claim the key")
	}
}

func TestGuardClaimedActionSurvivesCancellation(t *testing.T) {
	guard := NewGuard()
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	var sawCancel atomic.Bool
	go func() {
		defer close(done)
		guard.Do(ctx, "key", func(actionCtx context.Context) error {
			close(started)
			<-release
			sawCancel.Store(actionCtx.Err() != nil)
			return nil
		})
	}()

	<-started
	cancel()
	close(release)
	<-done

	if sawCancel.Load() {
		t.Fatal("claimed action's context must survive invocation cancellation")
	}
	if !guard.Seen("key") {
		t.Fatal("completed action must have claimed the key")
	}
}

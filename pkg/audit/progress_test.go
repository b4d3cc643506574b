package audit

import (
	"sync"
	"testing"

	"github.com/auditkit/auditkit/pkg/timing"
)

func newBareOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	opts, err := NewOptions(Options{})
	if err != nil {
		t.Fatalf("NewOptions: %v", err)
	}
	return New(opts, discardLogger())
}

// TestComputeProgressWithoutTimingModules verifies the plain
// audited/effective*100 formula when no module registered timing work.
func TestComputeProgressWithoutTimingModules(t *testing.T) {
	o := newBareOrchestrator(t)

	if got := o.computeProgress(4, 0, 2); got != 50.0 {
		t.Fatalf("progress = %v, want 50.0", got)
	}
	if got := o.computeProgress(4, 0, 4); got != 100.0 {
		t.Fatalf("progress = %v, want 100.0", got)
	}
}

// TestComputeProgressSubtractsRedirects verifies redirects are removed
// from the denominator before the ratio is taken.
func TestComputeProgressSubtractsRedirects(t *testing.T) {
	o := newBareOrchestrator(t)

	// sitemap of 5, one redirect, 4 audited => effective 4, 4/4*100.
	if got := o.computeProgress(5, 1, 4); got != 100.0 {
		t.Fatalf("progress = %v, want 100.0", got)
	}
}

// TestComputeProgressClampsAndLogsOvershootOnce verifies a progress value
// above 100.0 is clamped, and the one-time overshoot warning fires only
// once across repeated calls.
func TestComputeProgressClampsAndLogsOvershootOnce(t *testing.T) {
	o := newBareOrchestrator(t)

	// audited exceeds effective: 6/4*100 = 150, clamp to 100.
	if got := o.computeProgress(4, 0, 6); got != 100.0 {
		t.Fatalf("progress = %v, want 100.0 (clamped)", got)
	}
	if !o.overshootLogged {
		t.Fatal("expected overshootLogged true after an overshoot")
	}
	// Calling again should not panic or change behavior (logOvershootOnce guards itself).
	if got := o.computeProgress(4, 0, 6); got != 100.0 {
		t.Fatalf("progress = %v, want 100.0 (clamped, second call)", got)
	}
}

// TestComputeProgressTimingPhaseThreeCheckpoints walks the timing-attack
// phase through three checkpoints — regular phase done (modules loaded
// but the phase hasn't started), halfway through the phase, and phase
// complete — verifying the formula lands on 50.0, 75.0, and 100.0
// exactly, matching the split-weight rule (regular phase capped at 50
// once any module registers timing work, the other 50 earned by
// operation-count progress through the timing phase).
func TestComputeProgressTimingPhaseThreeCheckpoints(t *testing.T) {
	o := newBareOrchestrator(t)

	// Checkpoint 1: all 4 pages audited, one module has registered timing
	// work, but Coordinator.Run hasn't started yet.
	o.timing.Register(timing.Operation{Module: "timing_probe", Element: "a", Run: func() {}})
	if got := o.computeProgress(4, 0, 4); got != 50.0 {
		t.Fatalf("checkpoint 1 progress = %v, want 50.0", got)
	}

	// Drive Run() with 4 operations, pausing after the second to observe
	// the halfway checkpoint.
	o.timing = timing.New()
	var wg sync.WaitGroup
	release := make(chan struct{})
	halfway := make(chan struct{})

	for i := 0; i < 4; i++ {
		idx := i
		o.timing.Register(timing.Operation{
			Module:  "timing_probe",
			Element: "a",
			Run: func() {
				if idx == 2 {
					close(halfway)
					<-release
				}
			},
		})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.timing.Run()
	}()

	<-halfway
	if got := o.computeProgress(4, 0, 4); got != 75.0 {
		t.Fatalf("checkpoint 2 progress = %v, want 75.0", got)
	}
	close(release)
	wg.Wait()

	// Checkpoint 3: timing phase complete.
	if got := o.computeProgress(4, 0, 4); got != 100.0 {
		t.Fatalf("checkpoint 3 progress = %v, want 100.0", got)
	}
}

// TestStatsReportsResourceSnapshot verifies Stats surfaces a live
// goroutine count and a non-negative RSS reading (0 on platforms with no
// residentSetSize helper wired).
func TestStatsReportsResourceSnapshot(t *testing.T) {
	o := newBareOrchestrator(t)

	stats := o.Stats()
	if stats.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want > 0", stats.Goroutines)
	}
	if stats.MemoryRSSBytes < 0 {
		t.Errorf("MemoryRSSBytes = %d, want >= 0", stats.MemoryRSSBytes)
	}
}

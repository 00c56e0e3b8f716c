package observability

import (
	"testing"
	"time"
)

func TestSchedulerMetrics_Counters(t *testing.T) {
	m := NewSchedulerMetrics()
	m.IncActivated()
	m.IncActivated()
	m.IncQueued()
	m.IncDone()
	m.IncFailed()
	m.IncTimedOut()
	m.IncDeadLettered()

	snap := m.Snapshot()
	if snap.Activated != 2 {
		t.Fatalf("expected 2 activations, got %d", snap.Activated)
	}
	if snap.Queued != 1 || snap.Done != 1 || snap.Failed != 1 || snap.TimedOut != 1 || snap.DeadLettered != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestSchedulerMetrics_ObserveDuration(t *testing.T) {
	m := NewSchedulerMetrics()
	m.ObserveDuration(100 * time.Millisecond)
	m.ObserveDuration(300 * time.Millisecond)
	m.ObserveDuration(200 * time.Millisecond)

	snap := m.Snapshot()
	if snap.DurationCount != 3 {
		t.Fatalf("expected 3 observations, got %d", snap.DurationCount)
	}
	if snap.MaxDuration != 300*time.Millisecond {
		t.Fatalf("expected max duration 300ms, got %v", snap.MaxDuration)
	}
	wantAvg := 200 * time.Millisecond
	if snap.AverageDuration != wantAvg {
		t.Fatalf("expected average duration %v, got %v", wantAvg, snap.AverageDuration)
	}
}

func TestSchedulerMetrics_SnapshotWithNoObservations(t *testing.T) {
	m := NewSchedulerMetrics()
	snap := m.Snapshot()
	if snap.DurationCount != 0 || snap.AverageDuration != 0 || snap.MaxDuration != 0 {
		t.Fatalf("expected a zero-value snapshot before any observation, got %+v", snap)
	}
}

package observability

import (
	"sync/atomic"
	"time"
)

// SchedulerMetrics are cheap in-process counters snapshotted on a timer for
// logging, independent of the Prometheus series in Prom (which are scraped).
type SchedulerMetrics struct {
	activated    atomic.Uint64
	queued       atomic.Uint64
	done         atomic.Uint64
	failed       atomic.Uint64
	timedOut     atomic.Uint64
	deadLettered atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewSchedulerMetrics() *SchedulerMetrics {
	m := &SchedulerMetrics{}
	m.durationMax.Store(0)
	return m
}

func (m *SchedulerMetrics) IncActivated()    { m.activated.Add(1) }
func (m *SchedulerMetrics) IncQueued()       { m.queued.Add(1) }
func (m *SchedulerMetrics) IncDone()         { m.done.Add(1) }
func (m *SchedulerMetrics) IncFailed()       { m.failed.Add(1) }
func (m *SchedulerMetrics) IncTimedOut()     { m.timedOut.Add(1) }
func (m *SchedulerMetrics) IncDeadLettered() { m.deadLettered.Add(1) }

func (m *SchedulerMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()
		if ns <= curr {
			return
		}
		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type SchedulerMetricsSnapshot struct {
	Activated       uint64
	Queued          uint64
	Done            uint64
	Failed          uint64
	TimedOut        uint64
	DeadLettered    uint64
	DurationCount   uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

func (m *SchedulerMetrics) Snapshot() SchedulerMetricsSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()
	max := m.durationMax.Load()

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return SchedulerMetricsSnapshot{
		Activated:       m.activated.Load(),
		Queued:          m.queued.Load(),
		Done:            m.done.Load(),
		Failed:          m.failed.Load(),
		TimedOut:        m.timedOut.Load(),
		DeadLettered:    m.deadLettered.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(max),
	}
}

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/jobdefinition"
	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("jobregistry-scheduler")

func newLogLine(text string) jobinfo.LogLine {
	return jobinfo.LogLine{Timestamp: time.Now().UTC(), Text: text}
}

// JobInfoRepository is the subset of postgres.JobInfoRepo the scheduler
// depends on, kept narrow so tests can supply an in-memory fake.
type JobInfoRepository interface {
	Create(ctx context.Context, j jobinfo.JobInfo) (jobinfo.JobInfo, error)
	ActivateQueuedJob(ctx context.Context, name, host, thread string) (jobinfo.JobInfo, error)
	MarkRunningAsFinishedSuccessfully(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error)
	MarkRunningAsFinishedWithException(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error)
	MarkQueuedAsNotExecuted(ctx context.Context, id string) (jobinfo.JobInfo, error)
	UpdateHostThreadInformation(ctx context.Context, id, host, thread string) error
	AddAdditionalData(ctx context.Context, id, key, value string) error
	SetStatusMessage(ctx context.Context, id, message string) error
	AddLogLine(ctx context.Context, id string, line jobinfo.LogLine) error
	FindByNameAndRunningState(ctx context.Context, name string, state jobinfo.RunningState) (jobinfo.JobInfo, error)
	FindQueuedJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error)
	FindRunningJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error)
	CleanupTimedOutJobs(ctx context.Context, now time.Time) (int64, error)
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupNotExecutedJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

type JobDefinitionRepository interface {
	Save(ctx context.Context, d jobdefinition.JobDefinition) error
	Find(ctx context.Context, name string) (jobdefinition.JobDefinition, error)
	FindAll(ctx context.Context) ([]jobdefinition.JobDefinition, error)
	SetDisabled(ctx context.Context, name string, disabled bool) error
}

type Config struct {
	Host          string
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration

	HoursOldJobsDeleted      int
	HoursNotExecutedDeleted  int
	TimeoutSweepInterval     time.Duration
	OldJobsSweepInterval     time.Duration
	NotExecutedSweepInterval time.Duration
	QueueDrainInterval       time.Duration
	RemoteJobPollInterval    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	if c.HoursOldJobsDeleted <= 0 {
		c.HoursOldJobsDeleted = 168
	}
	if c.HoursNotExecutedDeleted <= 0 {
		c.HoursNotExecutedDeleted = 4
	}
	if c.TimeoutSweepInterval <= 0 {
		c.TimeoutSweepInterval = 30 * time.Second
	}
	if c.OldJobsSweepInterval <= 0 {
		c.OldJobsSweepInterval = 1 * time.Hour
	}
	if c.NotExecutedSweepInterval <= 0 {
		c.NotExecutedSweepInterval = 1 * time.Hour
	}
	if c.QueueDrainInterval <= 0 {
		c.QueueDrainInterval = 2 * time.Second
	}
	if c.RemoteJobPollInterval <= 0 {
		c.RemoteJobPollInterval = 5 * time.Second
	}
}

// Scheduler is the job service: it owns the registered runnables, enforces
// the execute/queue/run lifecycle against the backing job_infos store, and
// dispatches local work onto a bounded worker pool. Two-phase commit never
// enters the picture — the unique index on (name, running_state) is the
// only coordination primitive, which is what lets several scheduler
// processes run against the same database safely.
type Scheduler struct {
	cfg     Config
	repo    JobInfoRepository
	defs    JobDefinitionRepository
	metrics *observability.SchedulerMetrics
	prom    *observability.Prom
	remote  RemoteExecutor

	mu        sync.RWMutex
	runnables map[string]JobRunnable

	sem chan struct{}

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobInfoRepository, defs JobDefinitionRepository, prom *observability.Prom) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:       cfg,
		repo:      repo,
		defs:      defs,
		metrics:   observability.NewSchedulerMetrics(),
		prom:      prom,
		runnables: make(map[string]JobRunnable),
		sem:       make(chan struct{}, cfg.Concurrency),
		ready:     true,
	}
}

func (s *Scheduler) Metrics() *observability.SchedulerMetrics { return s.metrics }

// Register associates a name with its runnable and upserts the job
// definition describing its timeout/polling behavior. Call before Execute
// can be used for that name.
func (s *Scheduler) Register(ctx context.Context, def jobdefinition.JobDefinition, runnable JobRunnable) error {
	if err := s.defs.Save(ctx, def); err != nil {
		return err
	}
	s.mu.Lock()
	s.runnables[def.Name] = runnable
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) runnableFor(name string) (JobRunnable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runnables[name]
	return r, ok
}

// PreconditionChecker is an optional JobRunnable extension: a runnable that
// implements it is asked whether execution is actually necessary before
// Execute runs it under jobinfo.CheckPreconditions. Runnables that don't
// implement it are always considered necessary, matching the teacher's
// optional-interface pattern (akin to io.ReaderFrom) rather than forcing
// every runnable to carry a trivial `return true`.
type PreconditionChecker interface {
	IsExecutionNecessary(ctx context.Context) bool
}

func isExecutionNecessary(ctx context.Context, runnable JobRunnable) bool {
	if pre, ok := runnable.(PreconditionChecker); ok {
		return pre.IsExecutionNecessary(ctx)
	}
	return true
}

// Execute implements the combined dispatch/enqueue decision from
// SPEC_FULL.md: if no instance of name is RUNNING, preconditions are
// evaluated (when priority is CheckPreconditions) and a RUNNING record is
// created and dispatched immediately; if one is already RUNNING, name is
// enqueued instead — unless one is already QUEUED too, in which case the
// call fails with ErrJobAlreadyQueued. JOB_EXECUTION_DISABLED is checked
// first (unless priority is ForceExecution), JOB_NOT_REGISTERED when no
// runnable answers to this name.
func (s *Scheduler) Execute(ctx context.Context, name string, priority jobinfo.Priority, params map[string]string) (jobinfo.JobInfo, error) {
	runnable, ok := s.runnableFor(name)
	if !ok {
		return jobinfo.JobInfo{}, ErrJobNotRegistered
	}

	def, err := s.defs.Find(ctx, name)
	if err != nil {
		return jobinfo.JobInfo{}, ErrJobNotRegistered
	}
	if def.Disabled && priority != jobinfo.ForceExecution {
		return jobinfo.JobInfo{}, ErrJobExecutionDisabled
	}

	if _, err := s.repo.FindByNameAndRunningState(ctx, name, jobinfo.Running); err == nil {
		if _, err := s.repo.FindByNameAndRunningState(ctx, name, jobinfo.Queued); err == nil {
			return jobinfo.JobInfo{}, ErrJobAlreadyQueued
		}
		return s.createAndStore(ctx, name, def, priority, params, jobinfo.Queued, nil)
	} else if !errors.Is(err, jobinfo.ErrNotFound) {
		return jobinfo.JobInfo{}, ErrJobPersistenceError
	}

	if priority == jobinfo.CheckPreconditions && !isExecutionNecessary(ctx, runnable) {
		return jobinfo.JobInfo{}, ErrJobNotNecessary
	}

	return s.createAndStore(ctx, name, def, priority, params, jobinfo.Running, runnable)
}

// createAndStore inserts a new job info under state and, if runnable is
// non-nil (the RUNNING path), dispatches it. A unique-index collision at
// insert time means another process won the race for this (name, state)
// pair between our precondition check and this write; it is translated to
// the matching ALREADY_RUNNING/ALREADY_QUEUED sentinel, never silently
// retried.
func (s *Scheduler) createAndStore(ctx context.Context, name string, def jobdefinition.JobDefinition, priority jobinfo.Priority, params map[string]string, state jobinfo.RunningState, runnable JobRunnable) (jobinfo.JobInfo, error) {
	req := jobinfo.CreateRequest{
		Name:             name,
		MaxExecutionTime: def.TimeoutPeriod.Milliseconds(),
		RunningState:     state,
		Priority:         priority,
		Parameters:       params,
	}
	if state == jobinfo.Running {
		req.Host = s.cfg.Host
		req.Thread = s.cfg.WorkerID
	}
	ji := jobinfo.New(req)

	created, err := s.repo.Create(ctx, ji)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return s.describeCollision(ctx, name, state)
		}
		return jobinfo.JobInfo{}, ErrJobPersistenceError
	}

	if s.prom != nil && state == jobinfo.Queued {
		s.prom.QueueDepth.Inc()
	}
	if runnable != nil {
		s.dispatch(created, runnable)
	}
	return created, nil
}

// Queue creates a QUEUED job info for name without running it. A later
// drain sweep (see metajobs.go) or an explicit RunQueued call activates it.
func (s *Scheduler) Queue(ctx context.Context, name string, priority jobinfo.Priority, params map[string]string) (jobinfo.JobInfo, error) {
	if _, ok := s.runnableFor(name); !ok {
		return jobinfo.JobInfo{}, ErrJobNotRegistered
	}

	def, err := s.defs.Find(ctx, name)
	if err != nil {
		return jobinfo.JobInfo{}, ErrJobNotRegistered
	}
	if def.Disabled && priority != jobinfo.ForceExecution {
		return jobinfo.JobInfo{}, ErrJobExecutionDisabled
	}

	ji := jobinfo.New(jobinfo.CreateRequest{
		Name:             name,
		MaxExecutionTime: def.TimeoutPeriod.Milliseconds(),
		RunningState:     jobinfo.Queued,
		Priority:         priority,
		Parameters:       params,
	})

	created, err := s.repo.Create(ctx, ji)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return s.describeCollision(ctx, name, jobinfo.Queued)
		}
		return jobinfo.JobInfo{}, ErrJobPersistenceError
	}

	if s.prom != nil {
		s.prom.QueueDepth.Inc()
	}
	return created, nil
}

// RunQueued activates the QUEUED record for name, if any, and dispatches it.
// Returns ErrJobNotNecessary both when nothing is queued and when the queued
// record's own preconditions turn out not to hold — the latter case first
// transitions the record to NOT_EXECUTED via markQueuedAsNotExecuted rather
// than leaving it stuck QUEUED forever. Either outcome is the expected
// result of most drain sweep ticks, not an error condition.
func (s *Scheduler) RunQueued(ctx context.Context, name string) (jobinfo.JobInfo, error) {
	runnable, ok := s.runnableFor(name)
	if !ok {
		return jobinfo.JobInfo{}, ErrJobNotRegistered
	}

	queued, err := s.repo.FindByNameAndRunningState(ctx, name, jobinfo.Queued)
	if err != nil {
		if errors.Is(err, jobinfo.ErrNotFound) {
			return jobinfo.JobInfo{}, ErrJobNotNecessary
		}
		return jobinfo.JobInfo{}, ErrJobPersistenceError
	}

	if queued.ExecutionPriority == jobinfo.CheckPreconditions && !isExecutionNecessary(ctx, runnable) {
		if _, err := s.repo.MarkQueuedAsNotExecuted(ctx, queued.ID); err != nil && !errors.Is(err, jobinfo.ErrNotFound) {
			return jobinfo.JobInfo{}, ErrJobPersistenceError
		}
		return jobinfo.JobInfo{}, ErrJobNotNecessary
	}

	activated, err := s.repo.ActivateQueuedJob(ctx, name, s.cfg.Host, s.cfg.WorkerID)
	if err != nil {
		if errors.Is(err, jobinfo.ErrNotFound) {
			if s.prom != nil {
				s.prom.ActivationRaces.Inc()
			}
			return jobinfo.JobInfo{}, ErrJobNotNecessary
		}
		return jobinfo.JobInfo{}, ErrJobPersistenceError
	}

	if s.metrics != nil {
		s.metrics.IncActivated()
	}
	s.dispatch(activated, runnable)
	return activated, nil
}

// describeCollision runs after a unique-index violation on (name, state):
// since that index is keyed on the exact state we tried to insert, the
// colliding record is necessarily in that same state — so report the
// sentinel matching it rather than re-deriving it from scratch.
func (s *Scheduler) describeCollision(ctx context.Context, name string, attempted jobinfo.RunningState) (jobinfo.JobInfo, error) {
	switch attempted {
	case jobinfo.Queued:
		return jobinfo.JobInfo{}, ErrJobAlreadyQueued
	default:
		return jobinfo.JobInfo{}, ErrJobAlreadyRunning
	}
}

// dispatch runs one job info on the bounded local worker pool, blocking the
// caller only long enough to acquire a slot (never to completion).
func (s *Scheduler) dispatch(ji jobinfo.JobInfo, runnable JobRunnable) {
	s.sem <- struct{}{}
	if s.prom != nil {
		s.prom.JobsInFlight.Inc()
	}

	go func() {
		defer func() {
			<-s.sem
			if s.prom != nil {
				s.prom.JobsInFlight.Dec()
			}
		}()
		s.runOne(ji, runnable)
	}()
}

func (s *Scheduler) runOne(ji jobinfo.JobInfo, runnable JobRunnable) {
	ctx, span := tracer.Start(context.Background(), "job.run",
		trace.WithAttributes(
			attribute.String("job.id", ji.ID),
			attribute.String("job.name", ji.Name),
			attribute.String("worker.id", s.cfg.WorkerID),
		),
	)
	defer span.End()

	jc := &jobContext{Context: ctx, id: ji.ID, name: ji.Name, s: s}

	start := time.Now()
	slog.Default().InfoContext(ctx, "job.start", "job_id", ji.ID, "job_name", ji.Name)

	runErr := runnable.Run(jc)
	d := time.Since(start)

	if errors.Is(runErr, ErrJobDelegated) {
		span.SetStatus(codes.Ok, "delegated")
		slog.Default().InfoContext(ctx, "job.delegated",
			"job_id", ji.ID, "job_name", ji.Name, "duration_ms", d.Milliseconds())
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveDuration(d)
	}

	result := "ok"
	var message *string
	if runErr != nil {
		result = "error"
		msg := runErr.Error()
		message = &msg

		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())

		if s.metrics != nil {
			s.metrics.IncFailed()
		}
		if _, err := s.repo.MarkRunningAsFinishedWithException(context.Background(), ji.ID, message); err != nil {
			slog.Default().ErrorContext(ctx, "job.mark_finished_failed", "job_id", ji.ID, "err", err)
		}
	} else {
		span.SetStatus(codes.Ok, "done")
		if s.metrics != nil {
			s.metrics.IncDone()
		}
		if _, err := s.repo.MarkRunningAsFinishedSuccessfully(context.Background(), ji.ID, nil); err != nil {
			slog.Default().ErrorContext(ctx, "job.mark_finished_failed", "job_id", ji.ID, "err", err)
		}
	}

	if s.prom != nil {
		s.prom.JobDuration.WithLabelValues(ji.Name, result).Observe(d.Seconds())
		s.prom.JobResults.WithLabelValues(ji.Name, result).Inc()
	}

	slog.Default().InfoContext(ctx, "job.finished",
		"job_id", ji.ID, "job_name", ji.Name, "duration_ms", d.Milliseconds(), "result", result)
}

func (s *Scheduler) SetReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()
}

func (s *Scheduler) Ready() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

// Run starts the meta-job periodic triggers (timeout sweep, retention
// sweeps, queue drain) and blocks until ctx is cancelled, then waits up to
// ShutdownGrace for in-flight dispatches to drain.
func (s *Scheduler) Run(ctx context.Context) error {
	s.registerMetaJobs(ctx)

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
	}{
		{metaCleanupTimedOut, s.cfg.TimeoutSweepInterval},
		{metaCleanupOldJobs, s.cfg.OldJobsSweepInterval},
		{metaCleanupNotExecuted, s.cfg.NotExecutedSweepInterval},
		{metaQueueDrain, s.cfg.QueueDrainInterval},
		{metaPollRemoteJobs, s.cfg.RemoteJobPollInterval},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration) {
			defer wg.Done()
			s.runPeriodic(ctx, name, interval)
		}(l.name, l.interval)
	}

	<-ctx.Done()
	s.SetReady(false)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		slog.Default().Warn("scheduler: shutdown grace exceeded")
	}
	return nil
}

// runPeriodic calls Execute(name) on every tick, treating the common
// outcomes (already running elsewhere, nothing to do) as routine rather
// than logging them as errors.
func (s *Scheduler) runPeriodic(ctx context.Context, name string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, interval)
			_, err := s.Execute(cctx, name, jobinfo.CheckPreconditions, nil)
			cancel()

			switch {
			case err == nil:
			case errors.Is(err, ErrJobAlreadyRunning), errors.Is(err, ErrJobAlreadyQueued):
				// another process in the cluster already owns this sweep
			default:
				slog.Default().Error("scheduler: meta job trigger failed", "job_name", name, "err", err)
			}
		}
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/eventhub/internal/domain/jobdefinition"
	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
	"github.com/jackc/pgx/v5/pgconn"
)

// errUniqueViolation stands in for the real driver error postgres.JobInfoRepo
// returns on a duplicate-key insert — a *pgconn.PgError with code 23505, the
// same thing postgres.IsUniqueViolation checks for.
var errUniqueViolation = &pgconn.PgError{Code: "23505"}

// memRepo is an in-memory JobInfoRepository that reproduces the I1
// mutual-exclusion invariant (at most one QUEUED and at most one RUNNING
// record per name) the same way the Postgres unique index does: Create
// fails with errUniqueViolation when a record for the name in the same
// state already exists.
type memRepo struct {
	mu   sync.Mutex
	byID map[string]jobinfo.JobInfo
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]jobinfo.JobInfo{}}
}

// recordWithState reports whether a record named name already carries
// exactly state, the same granularity the real (name, running_state)
// unique index enforces — a QUEUED and a RUNNING record for the same name
// may coexist, only two records in the *same* state may not.
func (r *memRepo) recordWithState(name string, state jobinfo.RunningState) bool {
	for _, j := range r.byID {
		if j.Name == name && j.RunningState == state {
			return true
		}
	}
	return false
}

func (r *memRepo) Create(ctx context.Context, j jobinfo.JobInfo) (jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recordWithState(j.Name, j.RunningState) {
		return jobinfo.JobInfo{}, errUniqueViolation
	}
	r.byID[j.ID] = j
	return j, nil
}

func (r *memRepo) ActivateQueuedJob(ctx context.Context, name, host, thread string) (jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Mirrors the real UPDATE ... WHERE ... AND NOT EXISTS guard: a name
	// with an existing RUNNING record never activates, it just loses the
	// race like any other collision against the unique index would.
	if r.recordWithState(name, jobinfo.Running) {
		return jobinfo.JobInfo{}, jobinfo.ErrNotFound
	}

	for id, j := range r.byID {
		if j.Name == name && j.RunningState == jobinfo.Queued {
			now := time.Now().UTC()
			j.RunningState = jobinfo.Running
			j.Host, j.Thread = host, thread
			j.StartTime, j.LastModificationTime = &now, now
			r.byID[id] = j
			return j, nil
		}
	}
	return jobinfo.JobInfo{}, jobinfo.ErrNotFound
}

func (r *memRepo) markFinished(id string, from jobinfo.RunningState, result jobinfo.ResultState, message *string) (jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.byID[id]
	if !ok || j.RunningState != from {
		return jobinfo.JobInfo{}, jobinfo.ErrNotFound
	}
	now := time.Now().UTC()
	j.RunningState = jobinfo.NewFinishedState()
	j.ResultState = &result
	j.ResultMessage = message
	j.FinishTime, j.LastModificationTime = &now, now
	r.byID[id] = j
	return j, nil
}

func (r *memRepo) MarkRunningAsFinishedSuccessfully(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error) {
	return r.markFinished(id, jobinfo.Running, jobinfo.Successful, message)
}

func (r *memRepo) MarkRunningAsFinishedWithException(ctx context.Context, id string, message *string) (jobinfo.JobInfo, error) {
	return r.markFinished(id, jobinfo.Running, jobinfo.Failed, message)
}

func (r *memRepo) MarkQueuedAsNotExecuted(ctx context.Context, id string) (jobinfo.JobInfo, error) {
	return r.markFinished(id, jobinfo.Queued, jobinfo.NotExecuted, nil)
}

func (r *memRepo) UpdateHostThreadInformation(ctx context.Context, id, host, thread string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return nil
	}
	j.Host, j.Thread = host, thread
	r.byID[id] = j
	return nil
}

func (r *memRepo) AddAdditionalData(ctx context.Context, id, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return nil
	}
	if j.AdditionalData == nil {
		j.AdditionalData = map[string]string{}
	}
	j.AdditionalData[key] = value
	r.byID[id] = j
	return nil
}

func (r *memRepo) SetStatusMessage(ctx context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return nil
	}
	j.StatusMessage = &message
	r.byID[id] = j
	return nil
}

func (r *memRepo) AddLogLine(ctx context.Context, id string, line jobinfo.LogLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	if !ok {
		return nil
	}
	j.LogLines = append(j.LogLines, line)
	r.byID[id] = j
	return nil
}

func (r *memRepo) FindByNameAndRunningState(ctx context.Context, name string, state jobinfo.RunningState) (jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.byID {
		if j.Name == name && j.RunningState == state {
			return j, nil
		}
	}
	return jobinfo.JobInfo{}, jobinfo.ErrNotFound
}

func (r *memRepo) FindQueuedJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []jobinfo.JobInfo
	for _, j := range r.byID {
		if j.RunningState == jobinfo.Queued {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *memRepo) FindRunningJobsSortedAscByCreationTime(ctx context.Context) ([]jobinfo.JobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []jobinfo.JobInfo
	for _, j := range r.byID {
		if j.RunningState == jobinfo.Running {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *memRepo) CleanupTimedOutJobs(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.byID {
		if j.RunningState == jobinfo.Running && j.IsTimedOut(now) {
			result := jobinfo.TimedOut
			finished := jobinfo.NewFinishedState()
			j.RunningState = finished
			j.ResultState = &result
			j.FinishTime, j.LastModificationTime = &now, now
			r.byID[id] = j
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for id, j := range r.byID {
		if j.RunningState.IsFinished() && j.CreationTime.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CleanupNotExecutedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for id, j := range r.byID {
		if j.RunningState.IsFinished() && j.ResultState != nil && *j.ResultState == jobinfo.NotExecuted && j.CreationTime.Before(cutoff) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// memDefs is an in-memory JobDefinitionRepository.
type memDefs struct {
	mu   sync.Mutex
	defs map[string]jobdefinition.JobDefinition
}

func newMemDefs() *memDefs {
	return &memDefs{defs: map[string]jobdefinition.JobDefinition{}}
}

func (d *memDefs) Save(ctx context.Context, def jobdefinition.JobDefinition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defs[def.Name] = def
	return nil
}

func (d *memDefs) Find(ctx context.Context, name string) (jobdefinition.JobDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.defs[name]
	if !ok {
		return jobdefinition.JobDefinition{}, jobdefinition.ErrNotFound
	}
	return def, nil
}

func (d *memDefs) FindAll(ctx context.Context) ([]jobdefinition.JobDefinition, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]jobdefinition.JobDefinition, 0, len(d.defs))
	for _, def := range d.defs {
		out = append(out, def)
	}
	return out, nil
}

func (d *memDefs) SetDisabled(ctx context.Context, name string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.defs[name]
	if !ok {
		return jobdefinition.ErrNotFound
	}
	def.Disabled = disabled
	d.defs[name] = def
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *memRepo, *memDefs) {
	t.Helper()
	repo := newMemRepo()
	defs := newMemDefs()
	s := New(Config{Host: "host-1", WorkerID: "w1", Concurrency: 4}, repo, defs, nil)
	return s, repo, defs
}

// blockingRunnable blocks on a channel so tests can control exactly when a
// dispatched job finishes, instead of racing against the worker goroutine.
type blockingRunnable struct {
	release chan struct{}
	result  error
}

func (b *blockingRunnable) Run(jc JobContext) error {
	<-b.release
	return b.result
}

func TestExecute_DuplicateQueueing(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	running := &blockingRunnable{release: make(chan struct{})}
	defer close(running.release)

	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, running); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	first, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil)
	if err != nil {
		t.Fatalf("first Execute error: %v", err)
	}
	if first.RunningState != jobinfo.Running {
		t.Fatalf("expected first execution to be RUNNING, got %s", first.RunningState)
	}

	second, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil)
	if err != nil {
		t.Fatalf("second Execute error: %v", err)
	}
	if second.RunningState != jobinfo.Queued {
		t.Fatalf("expected second execution to be QUEUED, got %s", second.RunningState)
	}

	if _, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil); !errors.Is(err, ErrJobAlreadyQueued) {
		t.Fatalf("expected ErrJobAlreadyQueued on a third attempt, got %v", err)
	}
}

func TestExecute_JobNotRegistered(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if _, err := s.Execute(context.Background(), "missing", jobinfo.CheckPreconditions, nil); !errors.Is(err, ErrJobNotRegistered) {
		t.Fatalf("expected ErrJobNotRegistered, got %v", err)
	}
}

func TestExecute_DisabledDefinition(t *testing.T) {
	s, _, defs := newTestScheduler(t)
	ctx := context.Background()

	noop := JobRunnableFunc(func(jc JobContext) error { return nil })
	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", Disabled: true}, noop); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil); !errors.Is(err, ErrJobExecutionDisabled) {
		t.Fatalf("expected ErrJobExecutionDisabled, got %v", err)
	}

	// ForceExecution bypasses the disabled flag.
	if err := defs.SetDisabled(ctx, "import", true); err != nil {
		t.Fatalf("SetDisabled error: %v", err)
	}
	if _, err := s.Execute(ctx, "import", jobinfo.ForceExecution, nil); err != nil {
		t.Fatalf("expected ForceExecution to bypass the disabled flag, got %v", err)
	}
}

func TestExecute_SuccessfulRunMarksFinished(t *testing.T) {
	s, repo, _ := newTestScheduler(t)
	ctx := context.Background()

	running := &blockingRunnable{release: make(chan struct{})}

	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, running); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	ji, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	close(running.release)

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.byID[ji.ID].RunningState.IsFinished()
	})

	repo.mu.Lock()
	final := repo.byID[ji.ID]
	repo.mu.Unlock()

	if final.ResultState == nil || *final.ResultState != jobinfo.Successful {
		t.Fatalf("expected SUCCESSFUL result, got %+v", final.ResultState)
	}
}

func TestExecute_FailedRunRecordsFAILEDWithMessage(t *testing.T) {
	s, repo, _ := newTestScheduler(t)
	ctx := context.Background()

	running := &blockingRunnable{release: make(chan struct{}), result: errors.New("boom")}

	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, running); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	ji, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	close(running.release)

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.byID[ji.ID].RunningState.IsFinished()
	})

	repo.mu.Lock()
	final := repo.byID[ji.ID]
	repo.mu.Unlock()

	if final.ResultState == nil || *final.ResultState != jobinfo.Failed {
		t.Fatalf("expected FAILED result, got %+v", final.ResultState)
	}
	if final.ResultMessage == nil || *final.ResultMessage != "boom" {
		t.Fatalf("expected result message %q, got %v", "boom", final.ResultMessage)
	}
}

func TestRunQueued_ActivatesOldestAndReturnsNotNecessaryWhenEmpty(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	noop := JobRunnableFunc(func(jc JobContext) error { return nil })
	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, noop); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := s.RunQueued(ctx, "import"); !errors.Is(err, ErrJobNotNecessary) {
		t.Fatalf("expected ErrJobNotNecessary with nothing queued, got %v", err)
	}

	if _, err := s.Queue(ctx, "import", jobinfo.CheckPreconditions, nil); err != nil {
		t.Fatalf("Queue error: %v", err)
	}

	activated, err := s.RunQueued(ctx, "import")
	if err != nil {
		t.Fatalf("RunQueued error: %v", err)
	}
	if activated.RunningState != jobinfo.Running {
		t.Fatalf("expected activated record to be RUNNING, got %s", activated.RunningState)
	}
}

// preconditionRunnable reports whether execution is necessary via the
// optional scheduler.PreconditionChecker interface.
type preconditionRunnable struct {
	necessary bool
	ran       bool
}

func (p *preconditionRunnable) Run(jc JobContext) error {
	p.ran = true
	return nil
}

func (p *preconditionRunnable) IsExecutionNecessary(ctx context.Context) bool {
	return p.necessary
}

func TestExecute_CheckPreconditionsSkipsWhenNotNecessary(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	runnable := &preconditionRunnable{necessary: false}
	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, runnable); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil); !errors.Is(err, ErrJobNotNecessary) {
		t.Fatalf("expected ErrJobNotNecessary, got %v", err)
	}
	if runnable.ran {
		t.Fatalf("expected the runnable not to run when its precondition fails")
	}
}

func TestExecute_IgnorePreconditionsRunsAnyway(t *testing.T) {
	s, repo, _ := newTestScheduler(t)
	ctx := context.Background()

	runnable := &preconditionRunnable{necessary: false}
	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, runnable); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	ji, err := s.Execute(ctx, "import", jobinfo.IgnorePreconditions, nil)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	waitFor(t, func() bool { return runnable.ran })

	waitFor(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.byID[ji.ID].RunningState.IsFinished()
	})
}

func TestRunQueued_JobNotRegistered(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if _, err := s.RunQueued(context.Background(), "missing"); !errors.Is(err, ErrJobNotRegistered) {
		t.Fatalf("expected ErrJobNotRegistered, got %v", err)
	}
}

// TestRunQueued_BlockedByExistingRunningReturnsNotNecessary reproduces the
// common drain-sweep scenario: a name is still RUNNING with another
// instance QUEUED behind it. Activation must lose gracefully (ErrJobNotNecessary)
// rather than bubbling up a persistence error that would abort the whole
// sweep over every other queued name.
func TestRunQueued_BlockedByExistingRunningReturnsNotNecessary(t *testing.T) {
	s, repo, _ := newTestScheduler(t)
	ctx := context.Background()

	running := &blockingRunnable{release: make(chan struct{})}
	defer close(running.release)

	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, running); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := s.Execute(ctx, "import", jobinfo.CheckPreconditions, nil); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if _, err := s.Queue(ctx, "import", jobinfo.CheckPreconditions, nil); err != nil {
		t.Fatalf("Queue error: %v", err)
	}

	if _, err := s.RunQueued(ctx, "import"); !errors.Is(err, ErrJobNotNecessary) {
		t.Fatalf("expected ErrJobNotNecessary while a RUNNING record blocks activation, got %v", err)
	}

	queued, err := repo.FindQueuedJobsSortedAscByCreationTime(ctx)
	if err != nil {
		t.Fatalf("FindQueuedJobsSortedAscByCreationTime error: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("expected the queued record to remain untouched, got %d", len(queued))
	}
}

func TestRunQueued_PreconditionFailureMarksNotExecuted(t *testing.T) {
	s, repo, _ := newTestScheduler(t)
	ctx := context.Background()

	runnable := &preconditionRunnable{necessary: false}
	if err := s.Register(ctx, jobdefinition.JobDefinition{Name: "import", TimeoutPeriod: time.Minute}, runnable); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	queuedJI, err := s.Queue(ctx, "import", jobinfo.CheckPreconditions, nil)
	if err != nil {
		t.Fatalf("Queue error: %v", err)
	}

	if _, err := s.RunQueued(ctx, "import"); !errors.Is(err, ErrJobNotNecessary) {
		t.Fatalf("expected ErrJobNotNecessary when preconditions fail, got %v", err)
	}
	if runnable.ran {
		t.Fatalf("expected the runnable not to run when its precondition fails")
	}

	repo.mu.Lock()
	final := repo.byID[queuedJI.ID]
	repo.mu.Unlock()

	if !final.RunningState.IsFinished() {
		t.Fatalf("expected the queued record to be finished, got %s", final.RunningState)
	}
	if final.ResultState == nil || *final.ResultState != jobinfo.NotExecuted {
		t.Fatalf("expected NOT_EXECUTED result, got %v", final.ResultState)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied before deadline")
}

package scheduler

import "context"

// Additional-data keys under which a remote-delegated job info stashes the
// state the pollRemoteJobs sweep needs to resume it, possibly from a
// different host than the one that started it.
const (
	AdditionalDataResultHash    = "resultHash"
	AdditionalDataLogLineOffset = "logLineOffset"
)

// RemoteExecutionStatus is the scheduler's own vocabulary for where a
// delegated remote execution stands, independent of whatever wire format a
// concrete RemoteExecutor polls against.
type RemoteExecutionStatus string

const (
	RemoteRunning   RemoteExecutionStatus = "RUNNING"
	RemoteSucceeded RemoteExecutionStatus = "SUCCEEDED"
	RemoteFailed    RemoteExecutionStatus = "FAILED"
)

// RemotePoll is one poll tick's outcome against a job identified by the
// resultHash handle recorded in additionalData at delegation time.
// NewLogLines holds only lines beyond fromLogLine, not the full history.
type RemotePoll struct {
	Status      RemoteExecutionStatus
	Message     string
	NewLogLines []string
}

// RemoteExecutor drives remote jobs on behalf of the pollRemoteJobs sweep.
// It is deliberately narrow and scheduler-local so that this package never
// has to import the concrete remote-executor client package; remoteexec.Poller
// implements it by adapting remoteexec.Client's Poll/Stop calls.
type RemoteExecutor interface {
	Poll(ctx context.Context, resultHash string, fromLogLine int) (RemotePoll, error)
	Stop(ctx context.Context, resultHash string) error
}

// SetRemoteExecutor wires the client the pollRemoteJobs meta job uses.
// Optional: a deployment with no remote-flagged job definitions never calls
// it, and the sweep becomes a no-op without one.
func (s *Scheduler) SetRemoteExecutor(remote RemoteExecutor) {
	s.remote = remote
}

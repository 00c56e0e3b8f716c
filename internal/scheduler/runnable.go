package scheduler

import "context"

// JobContext is handed to a JobRunnable for the duration of one execution.
// Writes through it are best-effort telemetry, not part of the lifecycle
// transition itself — the scheduler owns marking the job info finished.
type JobContext interface {
	context.Context

	JobID() string
	JobName() string

	SetStatusMessage(message string)
	AddLogLine(text string)
	AddAdditionalData(key, value string)
}

// JobRunnable is the unit of work a registered job name executes. Local
// jobs implement this directly; remote jobs are executed by
// remoteexec.Runnable, which adapts the same interface onto the HTTP
// delegate protocol.
type JobRunnable interface {
	Run(jc JobContext) error
}

// JobRunnableFunc adapts a plain function to JobRunnable, mirroring the
// stdlib http.HandlerFunc pattern.
type JobRunnableFunc func(jc JobContext) error

func (f JobRunnableFunc) Run(jc JobContext) error { return f(jc) }

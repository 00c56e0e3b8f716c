package scheduler

import "errors"

var (
	ErrJobNotRegistered      = errors.New("scheduler: job not registered")
	ErrJobAlreadyRunning     = errors.New("scheduler: job already running")
	ErrJobAlreadyQueued      = errors.New("scheduler: job already queued")
	ErrJobExecutionDisabled  = errors.New("scheduler: job execution disabled")
	ErrJobNotNecessary       = errors.New("scheduler: job execution not necessary")
	ErrRemoteExecutionFailed = errors.New("scheduler: remote execution failed")
	ErrJobPersistenceError   = errors.New("scheduler: job persistence error")

	// ErrJobDelegated is returned by a JobRunnable.Run that has handed its
	// work off to an external worker and returned before completion. runOne
	// treats it as a sentinel, not a failure: the RUNNING record is left
	// untouched for the pollRemoteJobs sweep to finish later, from this
	// process or any other.
	ErrJobDelegated = errors.New("scheduler: job delegated to remote executor")
)

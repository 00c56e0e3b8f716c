package jobinfo

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunningState is either an active state (QUEUED, RUNNING) or a finished
// token of the form FINISHED_<uuid>. A fresh token is minted on every finish
// so that (name, running_state) stays unique across unbounded history.
type RunningState string

const (
	Queued  RunningState = "QUEUED"
	Running RunningState = "RUNNING"

	finishedPrefix = "FINISHED_"
)

func NewFinishedState() RunningState {
	return RunningState(finishedPrefix + uuid.NewString())
}

func (s RunningState) IsFinished() bool {
	return strings.HasPrefix(string(s), finishedPrefix)
}

func (s RunningState) IsActive() bool {
	return s == Queued || s == Running
}

type ResultState string

const (
	Successful ResultState = "SUCCESSFUL"
	Failed     ResultState = "FAILED"
	TimedOut   ResultState = "TIMED_OUT"
	NotExecuted ResultState = "NOT_EXECUTED"
)

type Priority string

const (
	IgnorePreconditions Priority = "IGNORE_PRECONDITIONS"
	CheckPreconditions  Priority = "CHECK_PRECONDITIONS"
	ForceExecution      Priority = "FORCE_EXECUTION"
)

var ErrNotFound = errors.New("jobinfo: not found")

type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// JobInfo is one document per execution of a named job.
type JobInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Host   string `json:"host"`
	Thread string `json:"thread"`

	CreationTime         time.Time `json:"creationTime"`
	StartTime             *time.Time `json:"startTime,omitempty"`
	FinishTime            *time.Time `json:"finishTime,omitempty"`
	LastModificationTime  time.Time `json:"lastModificationTime"`

	RunningState  RunningState `json:"runningState"`
	ResultState   *ResultState `json:"resultState,omitempty"`
	ResultMessage *string      `json:"resultMessage,omitempty"`
	StatusMessage *string      `json:"statusMessage,omitempty"`

	ExecutionPriority Priority `json:"executionPriority"`
	MaxExecutionTime  int64    `json:"maxExecutionTime"` // milliseconds
	MaxIdleTime       *int64   `json:"maxIdleTime,omitempty"`

	Parameters     map[string]string `json:"parameters"`
	AdditionalData map[string]string `json:"additionalData"`
	LogLines       []LogLine         `json:"logLines"`
}

// IsTimedOut reports whether a RUNNING record has gone stale relative to now.
func (j JobInfo) IsTimedOut(now time.Time) bool {
	if j.RunningState != Running {
		return false
	}
	deadline := j.LastModificationTime.Add(time.Duration(j.MaxExecutionTime) * time.Millisecond)
	return deadline.Before(now)
}

type CreateRequest struct {
	Name             string
	Host             string
	Thread           string
	MaxExecutionTime int64
	RunningState     RunningState
	Priority         Priority
	Parameters       map[string]string
	AdditionalData   map[string]string
}

func New(req CreateRequest) JobInfo {
	now := time.Now().UTC()

	params := req.Parameters
	if params == nil {
		params = map[string]string{}
	}
	additional := req.AdditionalData
	if additional == nil {
		additional = map[string]string{}
	}

	j := JobInfo{
		ID:                   uuid.NewString(),
		Name:                 req.Name,
		Host:                 req.Host,
		Thread:               req.Thread,
		CreationTime:         now,
		LastModificationTime: now,
		RunningState:         req.RunningState,
		ExecutionPriority:    req.Priority,
		MaxExecutionTime:     req.MaxExecutionTime,
		Parameters:           params,
		AdditionalData:       additional,
		LogLines:             []LogLine{},
	}

	if req.RunningState == Running {
		j.StartTime = &now
	}

	return j
}

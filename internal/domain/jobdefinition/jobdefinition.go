package jobdefinition

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("jobdefinition: not found")

// Sentinel name used by the cluster-wide execution semaphore: a well-known
// definition with zero timeout/interval that other layers use as a lock
// handle rather than a schedulable job.
const SentinelName = "JOBS"

type JobDefinition struct {
	Name            string        `json:"name"`
	TimeoutPeriod   time.Duration `json:"timeoutPeriod"`
	PollingInterval time.Duration `json:"pollingInterval"`
	Remote          bool          `json:"remote"`
	Disabled        bool          `json:"disabled"`
}

func Sentinel() JobDefinition {
	return JobDefinition{Name: SentinelName}
}

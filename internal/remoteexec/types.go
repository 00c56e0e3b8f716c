package remoteexec

import "time"

// Status mirrors the remote worker's view of a delegated execution, polled
// by Client.Poll until it leaves StatusRunning.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// StatusResponse is the JSON body returned by a GET on the status URL
// handed back from Start's Location header.
type StatusResponse struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LogLines  []string  `json:"logLines,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

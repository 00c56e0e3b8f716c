package remoteexec

import (
	"context"
	"errors"

	"github.com/geocoder89/eventhub/internal/scheduler"
)

// Poller adapts Client's Poll/Stop calls to scheduler.RemoteExecutor so the
// pollRemoteJobs sweep can drive delegated jobs without the scheduler
// package ever importing this one. resultHash, as stashed in a job info's
// additionalData by Runnable, is the status URL Client.Start returned.
type Poller struct {
	client *Client
}

func NewPoller(client *Client) *Poller {
	return &Poller{client: client}
}

var _ scheduler.RemoteExecutor = (*Poller)(nil)

func (p *Poller) Poll(ctx context.Context, resultHash string, fromLogLine int) (scheduler.RemotePoll, error) {
	status, err := p.client.Poll(ctx, resultHash)
	if err != nil {
		return scheduler.RemotePoll{}, err
	}

	var newLines []string
	if fromLogLine < len(status.LogLines) {
		newLines = status.LogLines[fromLogLine:]
	}

	out := scheduler.RemotePoll{Message: status.Message, NewLogLines: newLines}
	switch status.Status {
	case StatusRunning:
		out.Status = scheduler.RemoteRunning
	case StatusSucceeded:
		out.Status = scheduler.RemoteSucceeded
	case StatusFailed:
		out.Status = scheduler.RemoteFailed
	default:
		return scheduler.RemotePoll{}, errors.New("remoteexec: unknown status " + string(status.Status))
	}
	return out, nil
}

func (p *Poller) Stop(ctx context.Context, resultHash string) error {
	return p.client.Stop(ctx, resultHash)
}

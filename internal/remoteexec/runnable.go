package remoteexec

import (
	"fmt"

	"github.com/geocoder89/eventhub/internal/archive"
	"github.com/geocoder89/eventhub/internal/scheduler"
)

// Runnable delegates one job's execution to a remote HTTP worker and
// returns immediately once the worker has accepted it. It satisfies
// scheduler.JobRunnable, but unlike a local runnable it never blocks until
// completion: the RUNNING record it leaves behind is picked up by the
// cluster-wide pollRemoteJobs sweep (see Poller), on this process or any
// other, which is what lets the remote worker keep running after the
// process that started it has gone away.
type Runnable struct {
	client   *Client
	archives archive.Provider
}

func NewRunnable(client *Client, archives archive.Provider) *Runnable {
	return &Runnable{client: client, archives: archives}
}

var _ scheduler.JobRunnable = (*Runnable)(nil)

func (r *Runnable) Run(jc scheduler.JobContext) error {
	ar, err := r.archives.CreateArchive(jc, jc.JobName())
	if err != nil {
		return fmt.Errorf("remoteexec: build archive: %w", err)
	}
	defer ar.Close()

	statusURL, err := r.client.Start(jc, jc.JobName(), ar)
	if err != nil {
		return fmt.Errorf("remoteexec: start: %w", err)
	}

	jc.AddAdditionalData(scheduler.AdditionalDataResultHash, statusURL)
	jc.AddAdditionalData(scheduler.AdditionalDataLogLineOffset, "0")
	jc.SetStatusMessage("delegated to remote executor")

	return scheduler.ErrJobDelegated
}

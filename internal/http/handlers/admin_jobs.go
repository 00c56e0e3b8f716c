package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/jobdefinition"
	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
	"github.com/geocoder89/eventhub/internal/scheduler"
	"github.com/gin-gonic/gin"
)

type JobDefinitionAdmin interface {
	SetDisabled(ctx context.Context, name string, disabled bool) error
	FindAll(ctx context.Context) ([]jobdefinition.JobDefinition, error)
}

// SweepForcer runs one of the scheduler's named retention/drain sweeps
// immediately instead of waiting out its interval.
type SweepForcer interface {
	ForceSweep(ctx context.Context, name string) (jobinfo.JobInfo, error)
}

type AdminScheduler interface {
	JobExecutor
	SweepForcer
}

type AdminJobsHandler struct {
	defs      JobDefinitionAdmin
	scheduler AdminScheduler
}

func NewAdminJobsHandler(defs JobDefinitionAdmin, scheduler AdminScheduler) *AdminJobsHandler {
	return &AdminJobsHandler{defs: defs, scheduler: scheduler}
}

// GET /admin/jobs
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	defs, err := h.defs.FindAll(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not list job definitions")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": defs})
}

// POST /admin/jobs/:name/disable
func (h *AdminJobsHandler) Disable(ctx *gin.Context) {
	h.setDisabled(ctx, true)
}

// POST /admin/jobs/:name/enable
func (h *AdminJobsHandler) Enable(ctx *gin.Context) {
	h.setDisabled(ctx, false)
}

func (h *AdminJobsHandler) setDisabled(ctx *gin.Context, disabled bool) {
	name := ctx.Param("name")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.defs.SetDisabled(cctx, name, disabled); err != nil {
		if errors.Is(err, jobdefinition.ErrNotFound) {
			RespondNotFound(ctx, "No job is registered under this name")
			return
		}
		RespondInternal(ctx, "Could not update job definition")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"name": name, "disabled": disabled})
}

// POST /admin/jobs/:name/force-execute bypasses JOB_EXECUTION_DISABLED and
// precondition checks entirely, for operators who need to kick a stuck job.
func (h *AdminJobsHandler) ForceExecute(ctx *gin.Context) {
	name := ctx.Param("name")

	var req triggerRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ji, err := h.scheduler.Execute(cctx, name, "FORCE_EXECUTION", req.Parameters)
	if err != nil {
		respondSchedulerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, ji)
}

// POST /admin/sweep/:name forces one of the named retention/drain/remote-poll
// sweeps to run now rather than waiting out its interval: timed-out,
// old-jobs, not-executed, queue-drain, remote-poll.
func (h *AdminJobsHandler) ForceSweep(ctx *gin.Context) {
	name := ctx.Param("name")

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ji, err := h.scheduler.ForceSweep(cctx, name)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownSweep) {
			RespondNotFound(ctx, "No sweep is registered under this name")
			return
		}
		respondSchedulerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, ji)
}

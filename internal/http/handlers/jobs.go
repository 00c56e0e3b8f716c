package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/jobinfo"
	"github.com/geocoder89/eventhub/internal/scheduler"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/gin-gonic/gin"
)

type JobExecutor interface {
	Execute(ctx context.Context, name string, priority jobinfo.Priority, params map[string]string) (jobinfo.JobInfo, error)
	Queue(ctx context.Context, name string, priority jobinfo.Priority, params map[string]string) (jobinfo.JobInfo, error)
}

type JobInfoReader interface {
	GetByID(ctx context.Context, id string) (jobinfo.JobInfo, error)
	History(ctx context.Context, name string, limit int) ([]jobinfo.JobInfo, error)
	MostRecent(ctx context.Context, name string) (jobinfo.JobInfo, error)
	MostRecentFinished(ctx context.Context, name string) (jobinfo.JobInfo, error)
	Overview(ctx context.Context) ([]jobinfo.JobInfo, error)
	JobNames(ctx context.Context) ([]string, error)
}

type JobsHandler struct {
	scheduler JobExecutor
	reader    JobInfoReader
}

func NewJobsHandler(scheduler JobExecutor, reader JobInfoReader) *JobsHandler {
	return &JobsHandler{scheduler: scheduler, reader: reader}
}

type triggerRequest struct {
	Priority   string            `json:"priority" binding:"omitempty,oneof=IGNORE_PRECONDITIONS CHECK_PRECONDITIONS FORCE_EXECUTION"`
	Parameters map[string]string `json:"parameters"`
}

func (r triggerRequest) priority() jobinfo.Priority {
	if r.Priority == "" {
		return jobinfo.CheckPreconditions
	}
	return jobinfo.Priority(r.Priority)
}

// POST /jobs/:name/execute
func (h *JobsHandler) Execute(ctx *gin.Context) {
	name := ctx.Param("name")

	var req triggerRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ji, err := h.scheduler.Execute(cctx, name, req.priority(), req.Parameters)
	if err != nil {
		respondSchedulerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, ji)
}

// POST /jobs/:name/queue
func (h *JobsHandler) Queue(ctx *gin.Context) {
	name := ctx.Param("name")

	var req triggerRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	ji, err := h.scheduler.Queue(cctx, name, req.priority(), req.Parameters)
	if err != nil {
		respondSchedulerError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, ji)
}

func respondSchedulerError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotRegistered):
		RespondNotFound(ctx, "No job is registered under this name")
	case errors.Is(err, scheduler.ErrJobAlreadyRunning):
		RespondConflict(ctx, "job_already_running", "A run of this job is already in progress")
	case errors.Is(err, scheduler.ErrJobAlreadyQueued):
		RespondConflict(ctx, "job_already_queued", "This job already has a queued run")
	case errors.Is(err, scheduler.ErrJobExecutionDisabled):
		RespondError(ctx, http.StatusForbidden, "job_execution_disabled", "This job has been disabled", nil)
	default:
		RespondInternal(ctx, "Could not trigger job")
	}
}

// GET /jobs
func (h *JobsHandler) Overview(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.reader.Overview(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not list jobs")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items})
}

// GET /jobs/:name
func (h *JobsHandler) MostRecent(ctx *gin.Context) {
	name := ctx.Param("name")

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	ji, err := h.reader.MostRecent(cctx, name)
	if err != nil {
		if errors.Is(err, jobinfo.ErrNotFound) {
			RespondNotFound(ctx, "No job info found for this name")
			return
		}
		RespondInternal(ctx, "Could not fetch job")
		return
	}
	ctx.JSON(http.StatusOK, ji)
}

// GET /jobs/:name/history?limit=50
func (h *JobsHandler) History(ctx *gin.Context) {
	name := ctx.Param("name")

	limit := parseInt(ctx.Query("limit"), 50)
	if limit < 1 || limit > 500 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 500")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.reader.History(cctx, name, limit)
	if err != nil {
		RespondInternal(ctx, "Could not fetch job history")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GET /jobinfos/:id
func (h *JobsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_request", "invalid_id")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	ji, err := h.reader.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, jobinfo.ErrNotFound) {
			RespondNotFound(ctx, "Job info not found")
			return
		}
		RespondInternal(ctx, "Could not fetch job info")
		return
	}
	ctx.JSON(http.StatusOK, ji)
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

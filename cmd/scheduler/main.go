package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/eventhub/internal/archive"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/jobdefinition"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/remoteexec"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/geocoder89/eventhub/internal/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// cmd/scheduler is the cluster process that actually runs jobs: it claims
// queued work, dispatches local and remote runnables, and drives the
// retention sweeps. Any number of these can run against the same database
// at once — the (name, running_state) unique index is what keeps them
// from double-running the same job.
func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(context.Background(), "jobregistry-scheduler", "localhost:4317")
	if err != nil {
		log.Fatalf("otel init failed: %v", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(observability.NewTraceHandler(base))
	slog.SetDefault(logger)

	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		slog.Default().ErrorContext(ctx, "db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	jobInfoRepo := postgres.NewJobInfoRepo(pool, prom)
	jobDefRepo := postgres.NewJobDefinitionRepo(pool, prom)

	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := jobDefRepo.EnsureSentinel(seedCtx); err != nil {
		cancel()
		slog.Default().ErrorContext(ctx, "failed to seed sentinel job definition", "err", err)
		os.Exit(1)
	}
	cancel()

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	sched := scheduler.New(scheduler.Config{
		Host:                     host,
		WorkerID:                 workerID,
		Concurrency:              cfg.SchedulerConcurrency,
		ShutdownGrace:            10 * time.Second,
		HoursOldJobsDeleted:      cfg.HoursOldJobsDeleted,
		HoursNotExecutedDeleted:  cfg.HoursNotExecutedDeleted,
		TimeoutSweepInterval:     cfg.TimeoutSweepInterval,
		OldJobsSweepInterval:     cfg.OldJobsSweepInterval,
		NotExecutedSweepInterval: cfg.NotExecutedSweepInterval,
		QueueDrainInterval:       cfg.QueueDrainInterval,
		RemoteJobPollInterval:    cfg.RemoteExecutorPollInterval,
	}, jobInfoRepo, jobDefRepo, prom)

	if err := registerJobs(ctx, sched, jobDefRepo, prom, cfg); err != nil {
		slog.Default().ErrorContext(ctx, "job registration failed", "err", err)
		os.Exit(1)
	}

	healthAddr := cfg.HealthAddr
	healthSrv := &http.Server{
		Addr:    healthAddr,
		Handler: sched.HealthHandler(reg),
	}
	go func() {
		slog.Default().InfoContext(ctx, "scheduler.health_listening", "addr", healthAddr)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().ErrorContext(ctx, "scheduler.health_server_failed", "err", err)
		}
	}()

	sched.SetReady(true)

	slog.Default().InfoContext(ctx, "scheduler.start",
		"worker_id", workerID,
		"health_addr", healthAddr,
	)

	if err := sched.Run(ctx); err != nil {
		slog.Default().ErrorContext(ctx, "scheduler.run_failed", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	slog.Default().InfoContext(context.Background(), "scheduler.shutdown_complete")
}

// registerJobs binds every persisted, non-sentinel job definition to a
// runnable. Remote-flagged definitions get a remoteexec.Runnable that
// delegates execution to the external worker over HTTP; this binary has no
// embedded business logic of its own to offer local definitions, so those
// are logged and skipped rather than silently never running.
func registerJobs(ctx context.Context, sched *scheduler.Scheduler, defs *postgres.JobDefinitionRepo, prom *observability.Prom, cfg config.Config) error {
	all, err := defs.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load job definitions: %w", err)
	}

	remoteClient := remoteexec.New(remoteexec.Config{
		BaseURL:          cfg.RemoteExecutorBaseURL,
		AccessToken:      cfg.RemoteExecutorAccessToken,
		RequestTimeout:   10 * time.Second,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}, prom)
	archives := archive.NewFSProvider(archiveRootDir())

	hasRemoteJobs := false
	for _, def := range all {
		if def.Name == jobdefinition.SentinelName {
			continue
		}
		if !def.Remote {
			slog.Default().WarnContext(ctx, "scheduler.no_local_runnable", "job", def.Name)
			continue
		}

		runnable := remoteexec.NewRunnable(remoteClient, archives)
		if err := sched.Register(ctx, def, runnable); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
		hasRemoteJobs = true
	}

	// The pollRemoteJobs sweep is the only thing that ever finishes a
	// delegated job's RUNNING record, so it needs the same client any
	// remoteexec.Runnable in this process used to start one. It is wired
	// only when at least one remote definition was registered; without it
	// the sweep reports that no remote executor is configured and does nothing.
	if hasRemoteJobs {
		sched.SetRemoteExecutor(remoteexec.NewPoller(remoteClient))
	}

	return nil
}

func archiveRootDir() string {
	if dir := os.Getenv("ARCHIVE_ROOT_DIR"); dir != "" {
		return dir
	}
	return "./archives"
}

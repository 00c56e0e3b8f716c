package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/db"
	httpx "github.com/geocoder89/eventhub/internal/http"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/geocoder89/eventhub/internal/scheduler"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

// cmd/api runs the external HTTP surface only: job triggers, job info
// reads, and the admin control group. It shares the database with
// cmd/scheduler but never runs jobs itself. Its Scheduler has no registered
// runnables, so Execute/Queue/RunQueued calls made here return
// ErrJobNotRegistered without inserting a row; jobs are started only by
// the cmd/scheduler process.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := observability.NewLogger(cfg.Env)

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	jobDefRepo := postgres.NewJobDefinitionRepo(pool, prom)
	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := jobDefRepo.EnsureSentinel(seedCtx); err != nil {
		cancel()
		log.Error("failed to seed sentinel job definition", "err", err)
		os.Exit(1)
	}
	cancel()

	// The API process does not dispatch jobs, but the router needs a
	// Scheduler to call Execute/Queue/RunQueued against and to report
	// readiness. It runs with zero registered runnables and Run() is
	// never called, so it never claims or executes work itself.
	sched := scheduler.New(scheduler.Config{Host: hostname(), WorkerID: "api"}, postgres.NewJobInfoRepo(pool, prom), jobDefRepo, prom)
	sched.SetReady(true)

	router := httpx.NewRouter(pool, sched, prom, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	log.Info("shutdown signal received")

	shutdownContext, cancelFunc := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFunc()

	if err := srv.Shutdown(shutdownContext); err != nil {
		log.Error("server graceful shutdown failed", "err", err)
		_ = srv.Close()
	} else {
		log.Info("server stopped gracefully.")
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "api"
	}
	return h
}

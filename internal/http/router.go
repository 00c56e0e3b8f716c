package http

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/geocoder89/eventhub/internal/auth"
	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/http/handlers"
	"github.com/geocoder89/eventhub/internal/http/middlewares"
	"github.com/geocoder89/eventhub/internal/jobinfoservice"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/redisclient"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/geocoder89/eventhub/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errNotReady = errors.New("scheduler not ready")

// NewRouter builds the thin external HTTP surface: job triggers, job info
// reads, and an admin control group gated behind a single operator
// credential. It never runs job logic itself — that's the Scheduler's job,
// already wired up and passed in by cmd/api.
func NewRouter(pool *pgxpool.Pool, sched *scheduler.Scheduler, prom *observability.Prom, cfg config.Config) *gin.Engine {
	if os.Getenv("APP_ENV") != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	redis := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.CORSMiddleware([]string{"http://localhost:3000"}))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.MaxBodyBytes(1 << 20))
	r.Use(middlewares.RequireJSON())
	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	readyCheck := func() error {
		if pool != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}
		{
			ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()
			if err := redis.Ping(ctx); err != nil {
				return err
			}
		}
		if sched != nil && !sched.Ready() {
			return errNotReady
		}
		return nil
	}

	h := handlers.NewHealthHandler(readyCheck)

	jobInfoRepo := postgres.NewJobInfoRepo(pool, prom)
	jobDefRepo := postgres.NewJobDefinitionRepo(pool, prom)

	readCache := cache.New(redis, cfg.CacheTTL, "jobregistry:")
	infoService := jobinfoservice.New(jobInfoRepo, readCache)

	jwtManager := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		0,
	)

	jobsHandler := handlers.NewJobsHandler(sched, infoService)
	adminJobsHandler := handlers.NewAdminJobsHandler(jobDefRepo, sched)
	authHandler := handlers.NewAdminAuthHandler(cfg.AdminUsername, cfg.AdminPasswordHash, jwtManager)
	authMiddleware := middlewares.NewAuthMiddleware(jwtManager)

	loginLimiter := middlewares.NewRateLimiter(5, 1*time.Minute)

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.POST("/auth/login", loginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)

	// job trigger + read surface: no auth required to read status, but
	// triggering execution is rate-limited per caller IP to avoid one
	// client hammering a job into permanent JOB_ALREADY_RUNNING collisions.
	triggerLimiter := middlewares.NewRateLimiter(30, 1*time.Minute)

	r.GET("/jobs", jobsHandler.Overview)
	r.GET("/jobs/:name", jobsHandler.MostRecent)
	r.GET("/jobs/:name/history", jobsHandler.History)
	r.POST("/jobs/:name/execute", triggerLimiter.RateLimiterMiddleware(middlewares.KeyByIP), jobsHandler.Execute)
	r.POST("/jobs/:name/queue", triggerLimiter.RateLimiterMiddleware(middlewares.KeyByIP), jobsHandler.Queue)
	r.GET("/jobinfos/:id", jobsHandler.GetByID)

	admin := r.Group("/admin")
	admin.Use(authMiddleware.RequireAuth(), authMiddleware.RequireRole("admin"))
	{
		admin.GET("/jobs", adminJobsHandler.List)
		admin.POST("/jobs/:name/disable", adminJobsHandler.Disable)
		admin.POST("/jobs/:name/enable", adminJobsHandler.Enable)
		admin.POST("/jobs/:name/force-execute", adminJobsHandler.ForceExecute)
		admin.POST("/sweep/:name", adminJobsHandler.ForceSweep)
	}

	return r
}

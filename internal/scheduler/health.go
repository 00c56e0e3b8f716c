package scheduler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler exposes liveness, readiness and a Prometheus scrape
// endpoint for the scheduler process. Readiness flips false as soon as
// shutdown begins so a load balancer or job dispatcher stops routing
// new work here before in-flight jobs have finished draining.
func (s *Scheduler) HealthHandler(reg *prometheus.Registry) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.GET("/readyz", func(ctx *gin.Context) {
		if !s.Ready() {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

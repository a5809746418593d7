package api

import (
	"steel-lb/internal/forward"
	"steel-lb/internal/pool"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the forwarder's router. /metrics lives on the
// separate listener monitor.StartMetricsServer opens at METRICS_ADDR,
// so a slow Prometheus scrape can never contend with the forwarding
// hot path on this router's listener.
func NewRouter(f *forward.Forwarder, p *pool.Pool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())

	h := NewHandler(f, p)

	r.GET("/api", h.Forward)
	r.GET("/healthz", h.Healthz)
	r.GET("/status", h.Status)

	return r
}

package api

import (
	"net/http"
	"time"

	"steel-lb/internal/forward"
	"steel-lb/internal/monitor"
	"steel-lb/internal/pool"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Handler holds the dependencies the load-balancer routes forward
// through: the hot-path Forwarder and the Pool read for /status.
type Handler struct {
	forwarder *forward.Forwarder
	pool      *pool.Pool
}

func NewHandler(f *forward.Forwarder, p *pool.Pool) *Handler {
	return &Handler{forwarder: f, pool: p}
}

// Forward is the balancer's single user-facing route: it forwards the
// request to the currently scheduled Node per spec.md §4.4.
func (h *Handler) Forward(c *gin.Context) {
	timer := prometheus.NewTimer(monitor.ForwardLatency)
	defer timer.ObserveDuration()

	body, err := h.forwarder.Forward(c.Request.Context())
	if err != nil {
		monitor.ForwardRequestsTotal.WithLabelValues("no_backend").Inc()
		respondError(c, http.StatusServiceUnavailable, ErrNoBackendAvailable)
		return
	}

	monitor.ForwardRequestsTotal.WithLabelValues("ok").Inc()
	c.Data(http.StatusOK, "text/plain; charset=utf-8", body)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Timestamp: formatTime(time.Now())})
}

func (h *Handler) Status(c *gin.Context) {
	snapshot := h.pool.Snapshot()
	scheduled := h.pool.GetScheduled()

	nodes := make([]NodeStatus, 0, len(snapshot))
	for _, n := range snapshot {
		nodes = append(nodes, NodeStatus{
			HostPort:      n.HostPort,
			ShortID:       n.ShortID(h.pool.Adapter()),
			State:         n.State().String(),
			MemoryUsedPct: n.MemoryUsedPct,
			Sampled:       n.Sampled,
			Scheduled:     scheduled != nil && scheduled.HostPort == n.HostPort,
		})
	}

	c.JSON(http.StatusOK, StatusResponse{
		PoolSize:  len(snapshot),
		MinNodes:  h.pool.Min(),
		MaxNodes:  h.pool.Max(),
		Nodes:     nodes,
		Timestamp: formatTime(time.Now()),
	})
}

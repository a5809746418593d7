package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"steel-lb/internal/api"
	"steel-lb/internal/audit"
	"steel-lb/internal/config"
	"steel-lb/internal/forward"
	"steel-lb/internal/health"
	"steel-lb/internal/monitor"
	"steel-lb/internal/pool"
	"steel-lb/internal/runtime"

	"github.com/hibiken/asynq"
)

// Server wires the control plane (Pool + health Loop) to the data
// plane (Forwarder) and the optional audit sidecar, mirroring the
// teacher's Server/Dependency split.
type Server struct {
	cfg           *config.Config
	deps          *Dependency
	httpServer    *http.Server
	metricsAddr   string
	asynqServer   *asynq.Server
	asynqMux      *asynq.ServeMux
	pool          *pool.Pool
	health        *health.Loop
	logger        *slog.Logger
}

func NewServer(cfg *config.Config, deps *Dependency) *Server {
	logger := deps.Logger

	adapter := runtime.NewDockerAdapter(deps.Docker, logger)

	p := pool.New(adapter, pool.Config{
		Image:         cfg.Worker.ImageName,
		MemoryLimit:   cfg.Worker.MemoryLimit,
		ContainerPort: cfg.Worker.ServerPort,
		LBPortStart:   cfg.Worker.LBPortStart,
		MinNodes:      cfg.Health.MinNodes,
		MaxNodes:      cfg.Health.MaxNodes,
	}, logger)

	var asynqServer *asynq.Server
	var asynqMux *asynq.ServeMux
	if deps.AuditOn {
		bus := audit.NewBus(deps.Redis, logger)
		enqueuer := audit.NewEnqueuer(deps.AsynqClient, logger)
		p.OnEvent = audit.NewSink(enqueuer).Handle

		repo := audit.NewRepository(deps.PG)
		taskWorker := audit.NewTaskWorker(repo, bus, logger)
		asynqMux = taskWorker.Mux()
		asynqServer = asynq.NewServer(deps.AsynqRedis, asynq.Config{
			Concurrency: cfg.Audit.Concurrency,
			Logger:      newAsynqLogger(logger),
		})
	}

	healthLoop := health.New(p, health.Config{
		Interval:      cfg.Health.Interval,
		MaxMemPct:     cfg.Health.MaxMemPct,
		MinMemPct:     cfg.Health.MinMemPct,
		ScaleUpStep:   cfg.Health.ScaleUpStep,
		ScaleDownStep: cfg.Health.ScaleDownStep,
	}, logger)

	forwarder := forward.New(p, logger)
	router := api.NewRouter(forwarder, p)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		cfg:         cfg,
		deps:        deps,
		httpServer:  httpServer,
		metricsAddr: cfg.Metrics.Addr,
		asynqServer: asynqServer,
		asynqMux:    asynqMux,
		pool:        p,
		health:      healthLoop,
		logger:      logger,
	}
}

// Start seeds the pool to INITIAL_NODE_COUNT, launches the health loop
// and the audit/metrics/HTTP listeners, and blocks until ctx is
// cancelled or the HTTP listener fails.
func (s *Server) Start(ctx context.Context) error {
	if err := s.pool.Add(ctx, s.cfg.Worker.InitialCount); err != nil {
		s.logger.Error("initial pool fill incomplete", "error", err)
	}

	go s.health.Run(ctx)

	if s.asynqServer != nil {
		s.logger.Info("starting audit worker", "concurrency", s.cfg.Audit.Concurrency)
		if err := s.asynqServer.Start(s.asynqMux); err != nil {
			s.logger.Error("audit worker failed to start", "error", err)
		}
	}

	go func() {
		if err := monitor.StartMetricsServer(ctx, s.metricsAddr, s.logger); err != nil {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting forwarder", "addr", s.cfg.Server.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

func (s *Server) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
	}

	if s.asynqServer != nil {
		s.asynqServer.Shutdown()
	}

	s.pool.Remove(shutdownCtx, s.pool.GetCount())

	s.logger.Info("server stopped gracefully")
	return nil
}

type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug("", "msg", args) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info("", "msg", args) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn("", "msg", args) }
func (a *asynqLogger) Error(args ...any) { a.l.Error("", "msg", args) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error("FATAL", "msg", args) }

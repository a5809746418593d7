package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"steel-lb/internal/monitor"

	"github.com/hibiken/asynq"
)

const TaskTypeLog = "audit:log"

// Enqueuer hands Events to an asynq queue instead of writing them
// synchronously, so a slow or down Postgres never blocks the pool
// mutation or health pass that produced the event. Grounded on the
// teacher's asynq.Client usage ahead of SessionTaskWorker.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewEnqueuer(client *asynq.Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger.With("component", "audit-enqueuer")}
}

// Enqueue is best-effort: a queue failure is logged, never returned
// to the caller, because audit degradation must not affect pool
// correctness (spec.md's audit-degraded error kind is surfaced
// through metrics/logs, not by failing the mutation that triggered it).
func (q *Enqueuer) Enqueue(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		q.logger.Error("failed to marshal audit event for queue", "error", err)
		return
	}
	task := asynq.NewTask(TaskTypeLog, payload)
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		q.logger.Warn("failed to enqueue audit event, dropping", "error", err, "kind", e.Kind)
		monitor.AuditDegradedTotal.Inc()
	}
}

// TaskWorker drains the audit queue and writes each Event to Postgres,
// mirroring the teacher's SessionTaskWorker.HandleSessionCreate shape.
type TaskWorker struct {
	repo   *Repository
	bus    *Bus
	logger *slog.Logger
}

func NewTaskWorker(repo *Repository, bus *Bus, logger *slog.Logger) *TaskWorker {
	return &TaskWorker{repo: repo, bus: bus, logger: logger.With("component", "audit-worker")}
}

func (w *TaskWorker) HandleLog(ctx context.Context, task *asynq.Task) error {
	var e Event
	if err := json.Unmarshal(task.Payload(), &e); err != nil {
		return fmt.Errorf("unmarshal audit task payload: %w", err)
	}

	if err := w.repo.Insert(ctx, e); err != nil {
		w.logger.Error("failed to persist audit event", "error", err, "kind", e.Kind)
		return err
	}

	if w.bus != nil {
		if err := w.bus.Publish(ctx, e); err != nil {
			w.logger.Warn("failed to publish audit event to live subscribers", "error", err)
		}
	}

	return nil
}

func (w *TaskWorker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeLog, w.HandleLog)
	return mux
}

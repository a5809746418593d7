// Package health runs the periodic sample → repair → publish →
// autoscale pass spec.md §4.3 describes. Grounded on the teacher's
// orchestrator.Pool.worker()/healthCheck()/maintainPool() ticker loop,
// generalized to the least-memory scheduling and threshold-autoscale
// policy this balancer needs instead of idle-container warm-pool
// maintenance.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"steel-lb/internal/pool"
)

type Config struct {
	Interval      time.Duration
	MaxMemPct     float64
	MinMemPct     float64
	ScaleUpStep   int
	ScaleDownStep int
}

// Loop is the long-lived worker spec.md §9 calls for in place of the
// source's decorated periodic task: it sleeps Interval between passes
// and observes a cancellation signal: ticks never overlap.
type Loop struct {
	pool   *pool.Pool
	cfg    Config
	logger *slog.Logger
}

func New(p *pool.Pool, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{pool: p, cfg: cfg, logger: logger.With("component", "health")}
}

// Run blocks until ctx is cancelled, running one pass every interval.
// A slow pass delays, never overlaps, the next one — pass is called
// synchronously inside the ticker loop.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pass(ctx)
		}
	}
}

// pass runs exactly one health pass. Any panic is caught so a single
// bad tick can't take down the loop — the next tick retries from
// scratch, per spec.md §4.3's exception policy.
func (l *Loop) pass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("health pass panicked, will retry next tick", "panic", r)
		}
	}()

	adapter := l.pool.Adapter()
	snapshot := l.pool.Snapshot()

	var active, failed []*pool.Node
	for _, n := range snapshot {
		sample, err := adapter.Sample(ctx, n.Handle)
		if err != nil {
			failed = append(failed, n)
			continue
		}
		n.MemoryUsedPct = sample.UsedPct()
		n.Sampled = true
		active = append(active, n)
	}

	var minNode, maxNode *pool.Node
	if len(active) > 0 {
		minNode, maxNode = active[0], active[0]
		for _, n := range active[1:] {
			if n.MemoryUsedPct < minNode.MemoryUsedPct {
				minNode = n
			}
			if n.MemoryUsedPct > maxNode.MemoryUsedPct {
				maxNode = n
			}
		}
	}

	if len(failed) > 0 {
		if err := l.pool.ReplaceFailed(ctx, failed); err != nil {
			l.logger.Error("repair phase failed", "error", err, "failed_count", len(failed))
		}
	}

	// Selection on an empty active set is skipped entirely — the
	// previous scheduled_node (if any) is left in place and the
	// forwarder's own failure path drives recovery, per spec.md §4.3
	// phase 2 and the "Selection on empty active set" design note.
	if minNode != nil {
		l.pool.SetScheduled(minNode)
	}

	scaleKind := "none"
	if len(active) > 0 && allAbove(active, l.cfg.MaxMemPct) {
		if l.pool.CanScaleUp(l.cfg.ScaleUpStep) {
			if err := l.pool.Add(ctx, l.cfg.ScaleUpStep); err != nil {
				l.logger.Error("scale-up failed", "error", err)
			}
			scaleKind = "scale_up"
		} else {
			l.logger.Info("scale-up refused: would reach or exceed MAX_NODES", "pool_size", l.pool.GetCount())
		}
	} else if len(active) > 0 && allBelow(active, l.cfg.MinMemPct) {
		if l.pool.CanScaleDown(l.cfg.ScaleDownStep) {
			l.pool.Remove(ctx, l.cfg.ScaleDownStep)
			scaleKind = "scale_down"
		} else {
			l.logger.Info("scale-down refused: would drop below MIN_NODES", "pool_size", l.pool.GetCount())
		}
	}

	l.logger.Debug("health pass complete",
		"active", len(active), "failed", len(failed), "scale", scaleKind,
		"min_node_pct", nodePct(minNode), "max_node_pct", nodePct(maxNode))

	if l.pool.OnEvent != nil {
		l.pool.OnEvent(poolEvent(len(snapshot), len(failed), scaleKind))
	}
}

func allAbove(nodes []*pool.Node, threshold float64) bool {
	for _, n := range nodes {
		if n.MemoryUsedPct <= threshold {
			return false
		}
	}
	return true
}

func allBelow(nodes []*pool.Node, threshold float64) bool {
	for _, n := range nodes {
		if n.MemoryUsedPct >= threshold {
			return false
		}
	}
	return true
}

func nodePct(n *pool.Node) float64 {
	if n == nil {
		return -1
	}
	return n.MemoryUsedPct
}

func poolEvent(poolSize, failedCount int, scaleKind string) pool.Event {
	return pool.Event{
		Kind:     "health_pass",
		PoolSize: poolSize,
		Detail:   scaleDetail(failedCount, scaleKind),
	}
}

func scaleDetail(failedCount int, scaleKind string) string {
	if failedCount == 0 {
		return "scale=" + scaleKind
	}
	return fmt.Sprintf("scale=%s, repaired %d failed node(s)", scaleKind, failedCount)
}

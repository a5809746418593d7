package health

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"steel-lb/internal/pool"
	"steel-lb/internal/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(adapter *runtime.FakeAdapter) *pool.Pool {
	return pool.New(adapter, pool.Config{
		Image:         "steel-worker:latest",
		MemoryLimit:   "280m",
		ContainerPort: 5000,
		LBPortStart:   9000,
		MinNodes:      1,
		MaxNodes:      5,
	}, testLogger())
}

func TestPassSelectsLeastMemoryNode(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 3)

	nodes := p.Snapshot()
	adapter.SetUsedPct(nodes[0].Handle, 80)
	adapter.SetUsedPct(nodes[1].Handle, 10)
	adapter.SetUsedPct(nodes[2].Handle, 50)

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	sched := p.GetScheduled()
	if sched == nil || sched.HostPort != nodes[1].HostPort {
		t.Fatalf("expected scheduled node to be the least-used node (port %d), got %+v", nodes[1].HostPort, sched)
	}
}

func TestPassReplacesFailedNodes(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 2)

	nodes := p.Snapshot()
	adapter.Kill(nodes[0].Handle)
	adapter.SetUsedPct(nodes[1].Handle, 30)

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	if got := p.GetCount(); got != 2 {
		t.Fatalf("pool size = %d, want 2 (failed node should be replaced, not just removed)", got)
	}
}

func TestPassScalesUpWhenAllNodesAboveThreshold(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 2)

	for _, n := range p.Snapshot() {
		adapter.SetUsedPct(n.Handle, 95)
	}

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 2, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	if got := p.GetCount(); got != 4 {
		t.Fatalf("pool size = %d, want 4 after scale-up", got)
	}
}

func TestPassScalesDownWhenAllNodesBelowThreshold(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 3)

	for _, n := range p.Snapshot() {
		adapter.SetUsedPct(n.Handle, 1)
	}

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	if got := p.GetCount(); got != 2 {
		t.Fatalf("pool size = %d, want 2 after scale-down", got)
	}
}

func TestPassRefusesScaleDownAtMinNodes(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 1) // == MinNodes

	adapter.SetUsedPct(p.Snapshot()[0].Handle, 1)

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	if got := p.GetCount(); got != 1 {
		t.Fatalf("pool size = %d, want 1 (scale-down must be refused at MinNodes)", got)
	}
}

// When every sampled Node fails, the selection phase has no active Node
// to publish, and the repair phase removes the previously scheduled Node
// and repoints scheduled_node at its replacement — the dead Node is
// cleared from the pointer rather than left there stale.
func TestPassClearsScheduledNodeWhenItFails(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 1)

	priorSched := p.Snapshot()[0]
	p.SetScheduled(priorSched)
	adapter.Kill(priorSched.Handle)

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	replacement := p.Snapshot()[0]
	if got := p.GetScheduled(); got == priorSched || got != replacement {
		t.Errorf("scheduled node should move off the failed Node to its replacement (port %d), got %+v", replacement.HostPort, got)
	}
}

// Selection is skipped only for an empty active set: with a single live
// Node and no scheduled node yet, the pass still publishes that Node.
func TestPassSkipsSelectionOnlyWhenActiveSetEmpty(t *testing.T) {
	adapter := runtime.NewFakeAdapter()
	p := newTestPool(adapter)
	p.Add(context.Background(), 1)

	n := p.Snapshot()[0]
	adapter.SetUsedPct(n.Handle, 42)

	l := New(p, Config{Interval: time.Second, MaxMemPct: 90, MinMemPct: 5, ScaleUpStep: 1, ScaleDownStep: 1}, testLogger())
	l.pass(context.Background())

	sched := p.GetScheduled()
	if sched == nil || sched.HostPort != n.HostPort {
		t.Fatalf("expected the sole active node to be scheduled, got %+v", sched)
	}
}

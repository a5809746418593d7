package pool

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"steel-lb/internal/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Image:         "steel-worker:latest",
		MemoryLimit:   "280m",
		ContainerPort: 5000,
		LBPortStart:   9000,
		MinNodes:      1,
		MaxNodes:      5,
	}
}

func TestAddAllocatesSequentialPorts(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())

	if err := p.Add(context.Background(), 3); err != nil {
		t.Fatalf("Add: %v", err)
	}

	nodes := p.Snapshot()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	for i, n := range nodes {
		want := 9000 + i
		if n.HostPort != want {
			t.Errorf("node %d: host_port = %d, want %d", i, n.HostPort, want)
		}
	}
	if p.nextPort != 9003 {
		t.Errorf("next_port = %d, want 9003", p.nextPort)
	}
}

func TestRemoveDecrementsNextPortOnlyOnTailPop(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 3)

	p.Remove(context.Background(), 1)

	if got := p.GetCount(); got != 2 {
		t.Fatalf("pool size = %d, want 2", got)
	}
	if p.nextPort != 9002 {
		t.Errorf("next_port = %d, want 9002 after tail pop", p.nextPort)
	}
}

func TestReplaceFailedDoesNotDecrementNextPort(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 3)

	before := p.nextPort
	failed := p.Snapshot()[:1]
	if err := p.ReplaceFailed(context.Background(), failed); err != nil {
		t.Fatalf("ReplaceFailed: %v", err)
	}

	if p.nextPort <= before {
		t.Errorf("next_port = %d, want > %d (replacement must claim a new port)", p.nextPort, before)
	}
	if got := p.GetCount(); got != 3 {
		t.Fatalf("pool size = %d, want 3 after replace", got)
	}
}

func TestReplaceFailedPreservesSurvivorOrder(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 3)

	nodes := p.Snapshot()
	middle := nodes[1]

	if err := p.ReplaceFailed(context.Background(), []*Node{middle}); err != nil {
		t.Fatalf("ReplaceFailed: %v", err)
	}

	after := p.Snapshot()
	if after[0].HostPort != nodes[0].HostPort {
		t.Errorf("survivor at index 0 changed: got %d, want %d", after[0].HostPort, nodes[0].HostPort)
	}
	if after[1].HostPort != nodes[2].HostPort {
		t.Errorf("survivor at index 1 should be the old tail: got %d, want %d", after[1].HostPort, nodes[2].HostPort)
	}
}

func TestScheduledClearedWhenItsNodeIsRemoved(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 2)

	nodes := p.Snapshot()
	last := nodes[len(nodes)-1]
	p.SetScheduled(last)

	p.Remove(context.Background(), 1)

	if got := p.GetScheduled(); got != nil {
		t.Errorf("scheduled node should be cleared once its Node is removed, got %+v", got)
	}
}

// spec.md §8 scenario S2: a 2-Node pool where the currently scheduled
// Node is the one that fails. ReplaceFailed must repoint scheduled_node
// at the surviving Node rather than leave it nil, so the forwarder's
// retry can reach the other Node instead of failing outright.
func TestReplaceFailedRepointsScheduledAtSurvivor(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 2)

	nodes := p.Snapshot()
	scheduled, survivor := nodes[0], nodes[1]
	p.SetScheduled(scheduled)

	if err := p.ReplaceFailed(context.Background(), []*Node{scheduled}); err != nil {
		t.Fatalf("ReplaceFailed: %v", err)
	}

	got := p.GetScheduled()
	if got == nil {
		t.Fatalf("scheduled node is nil, want it repointed at a live Node")
	}
	if got.HostPort != survivor.HostPort {
		t.Errorf("scheduled node = port %d, want the survivor's port %d", got.HostPort, survivor.HostPort)
	}
}

func TestCanScaleUpDownEdges(t *testing.T) {
	p := New(runtime.NewFakeAdapter(), testConfig(), testLogger())
	p.Add(context.Background(), 4) // MaxNodes=5

	if p.CanScaleUp(1) {
		t.Errorf("CanScaleUp(1) at size 4/5 should refuse (4+1 is not < 5)")
	}
	if !p.CanScaleDown(1) {
		t.Errorf("CanScaleDown(1) at size 4, min 1 should allow")
	}

	p.Remove(context.Background(), 3) // down to 1 == MinNodes
	if p.CanScaleDown(1) {
		t.Errorf("CanScaleDown(1) at size 1/1 should refuse")
	}
}

func TestAddStopsOnFirstErrorButKeepsNodesAlreadyAdded(t *testing.T) {
	fake := runtime.NewFakeAdapter()
	p := New(fake, testConfig(), testLogger())

	// Add two nodes successfully first.
	if err := p.Add(context.Background(), 2); err != nil {
		t.Fatalf("Add: %v", err)
	}

	fake.StartErr = context.DeadlineExceeded
	if err := p.Add(context.Background(), 2); err == nil {
		t.Fatalf("expected error from Add once StartErr is set")
	}

	if got := p.GetCount(); got != 2 {
		t.Errorf("pool size = %d, want 2 (nodes from the failed batch should not have been added)", got)
	}
}

package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeAdapter is an in-memory Adapter used by pool/health/forward tests
// so they can exercise the control plane's invariants without a Docker
// daemon. It never talks to a real runtime.
type FakeAdapter struct {
	mu      sync.Mutex
	nextID  int64
	alive   map[string]bool
	samples map[string]Sample

	// StartErr, when set, is returned by every Start call instead of
	// creating a container — used to exercise partial-add failure paths.
	StartErr error
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		alive:   make(map[string]bool),
		samples: make(map[string]Sample),
	}
}

func (f *FakeAdapter) Start(ctx context.Context, image, memoryLimit string, containerPort, hostPort int) (Handle, error) {
	if f.StartErr != nil {
		return Handle{}, f.StartErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	id := atomic.AddInt64(&f.nextID, 1)
	handleID := fmt.Sprintf("fakecontainer%016d", id)

	f.alive[handleID] = true
	f.samples[handleID] = Sample{UsedBytes: 0, LimitBytes: 100}

	return Handle{ID: handleID}, nil
}

func (f *FakeAdapter) StopAndRemove(ctx context.Context, h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, h.ID)
	delete(f.samples, h.ID)
}

func (f *FakeAdapter) Sample(ctx context.Context, h Handle) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[h.ID] {
		return Sample{}, ErrMissingStats
	}
	return f.samples[h.ID], nil
}

func (f *FakeAdapter) ShortID(h Handle) string {
	if len(h.ID) < 8 {
		return h.ID
	}
	return h.ID[:8]
}

// SetUsedPct sets the sampled memory percentage a live handle reports
// on its next Sample call.
func (f *FakeAdapter) SetUsedPct(h Handle, pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive[h.ID] {
		return
	}
	f.samples[h.ID] = Sample{UsedBytes: int64(pct), LimitBytes: 100}
}

// Kill marks a handle as dead — its next Sample call returns
// ErrMissingStats, simulating an externally-killed container.
func (f *FakeAdapter) Kill(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, h.ID)
}

func (f *FakeAdapter) IsAlive(h Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[h.ID]
}

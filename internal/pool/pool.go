// Package pool owns the ordered set of live worker Nodes, the
// monotonically increasing host-port allocator, and the currently
// scheduled Node — the three pieces of shared state the forwarder and
// the health loop coordinate over (spec.md §3 Pool, §5 concurrency
// model). Grounded on the teacher's orchestrator.Pool: a mutex around
// the slice/counter and an atomic handoff for the hot-path pointer.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"steel-lb/internal/runtime"
)

// Event is emitted after a mutation commits, outside the pool's mutex,
// so a slow or blocked audit sink can never stall a concurrent
// forwarder or health-loop call. Kind is one of "scale_up",
// "scale_down", "replace", or "health_pass".
type Event struct {
	Kind     string
	NodeIDs  []string
	PoolSize int
	Detail   string
}

type Config struct {
	Image         string
	MemoryLimit   string
	ContainerPort int
	LBPortStart   int
	MinNodes      int
	MaxNodes      int
}

// Pool owns nodes, next_port, and scheduled_node from spec.md §3.
// nodes/next_port are guarded by mu; scheduled_node is an atomic
// pointer so reads never tear and never block on mu — forwarders read
// it on every request while the health loop and ReplaceFailed write it.
type Pool struct {
	mu       sync.Mutex
	nodes    []*Node
	nextPort int

	scheduled atomic.Pointer[Node]

	adapter runtime.Adapter
	cfg     Config
	logger  *slog.Logger

	// OnEvent, when set, receives a post-commit Event for every
	// mutation. Best-effort: called synchronously but must not block —
	// callers (e.g. the audit package) hand off to a goroutine/queue
	// themselves, mirroring the teacher's CrashHandler wiring pattern.
	OnEvent func(Event)
}

func New(adapter runtime.Adapter, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		nodes:    make([]*Node, 0, cfg.MaxNodes),
		nextPort: cfg.LBPortStart,
		adapter:  adapter,
		cfg:      cfg,
		logger:   logger.With("component", "pool"),
	}
}

func (p *Pool) emit(e Event) {
	if p.OnEvent != nil {
		p.OnEvent(e)
	}
}

// Add allocates k ports from next_port, starts k containers, and
// appends each to nodes as it comes up. On a mid-batch runtime error,
// Nodes started so far stay in the pool and the error is propagated —
// the next health tick observes and replaces whatever didn't make it.
func (p *Pool) Add(ctx context.Context, k int) error {
	added := make([]string, 0, k)
	var firstErr error

	for i := 0; i < k; i++ {
		p.mu.Lock()
		port := p.nextPort
		p.nextPort++
		p.mu.Unlock()

		h, err := p.adapter.Start(ctx, p.cfg.Image, p.cfg.MemoryLimit, p.cfg.ContainerPort, port)
		if err != nil {
			firstErr = fmt.Errorf("start worker on port %d: %w", port, err)
			break
		}

		n := newNode(port, h)
		p.mu.Lock()
		p.nodes = append(p.nodes, n)
		count := len(p.nodes)
		p.mu.Unlock()

		added = append(added, p.adapter.ShortID(h))
		p.logger.Info("node added", "short_id", p.adapter.ShortID(h), "host_port", port, "pool_size", count)
	}

	if len(added) > 0 {
		p.emit(Event{Kind: "scale_up", NodeIDs: added, PoolSize: p.GetCount(), Detail: fmt.Sprintf("added %d/%d", len(added), k)})
	}
	return firstErr
}

// Remove pops up to k Nodes from the tail, stops-and-removes each, and
// decrements next_port once per pop — the only place next_port ever
// decreases, per spec.md's port-bookkeeping resolution (§9).
func (p *Pool) Remove(ctx context.Context, k int) {
	removed := make([]string, 0, k)

	for i := 0; i < k; i++ {
		p.mu.Lock()
		if len(p.nodes) == 0 {
			p.mu.Unlock()
			break
		}
		last := len(p.nodes) - 1
		n := p.nodes[last]
		p.nodes = p.nodes[:last]
		p.nextPort--
		p.mu.Unlock()

		if sched := p.scheduled.Load(); sched == n {
			p.scheduled.CompareAndSwap(n, nil)
		}

		removed = append(removed, p.adapter.ShortID(n.Handle))
		p.adapter.StopAndRemove(ctx, n.Handle)
	}

	if len(removed) > 0 {
		p.emit(Event{Kind: "scale_down", NodeIDs: removed, PoolSize: p.GetCount(), Detail: fmt.Sprintf("removed %d", len(removed))})
	}
}

// ReplaceFailed removes each Node in failed regardless of position,
// preserving the relative order of survivors, then re-adds the same
// count. next_port is NOT decremented here — only tail-pop (Remove)
// retires a port, because a mid-list removal cannot prove no later
// Node already reused a higher port number.
//
// If scheduled_node was one of the failed Nodes, it is repointed at the
// first live Node (a survivor when one remains, otherwise a newly-added
// replacement) rather than left nil — a forwarder
// retry must be able to reach whatever live capacity remains (spec.md
// §4.4 step 4, §8 scenario S2).
func (p *Pool) ReplaceFailed(ctx context.Context, failed []*Node) error {
	if len(failed) == 0 {
		return nil
	}

	deadSet := make(map[*Node]bool, len(failed))
	removedIDs := make([]string, 0, len(failed))
	for _, n := range failed {
		deadSet[n] = true
		removedIDs = append(removedIDs, p.adapter.ShortID(n.Handle))
	}

	p.mu.Lock()
	survivors := p.nodes[:0:0]
	for _, n := range p.nodes {
		if !deadSet[n] {
			survivors = append(survivors, n)
		}
	}
	p.nodes = survivors
	p.mu.Unlock()

	schedWasCleared := false
	for _, n := range failed {
		n.state = NodeDead
		if sched := p.scheduled.Load(); sched == n {
			p.scheduled.CompareAndSwap(n, nil)
			schedWasCleared = true
		}
		p.adapter.StopAndRemove(ctx, n.Handle)
	}

	p.emit(Event{Kind: "replace", NodeIDs: removedIDs, PoolSize: p.GetCount(), Detail: fmt.Sprintf("replacing %d failed node(s)", len(failed))})

	err := p.Add(ctx, len(failed))

	if schedWasCleared && p.scheduled.Load() == nil {
		if n := p.anyLiveNode(); n != nil {
			p.scheduled.Store(n)
		}
	}

	return err
}

// anyLiveNode returns the first live Node in insertion order. Survivors
// precede replacements in nodes, so a pre-existing survivor is preferred
// over a container that was only just started.
func (p *Pool) anyLiveNode() *Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.nodes) == 0 {
		return nil
	}
	return p.nodes[0]
}

// CanScaleUp applies spec.md §4.2's edge policy: growth is refused
// when current+step would reach or exceed MaxNodes.
func (p *Pool) CanScaleUp(step int) bool {
	return p.GetCount()+step < p.cfg.MaxNodes
}

// CanScaleDown applies spec.md §4.2's edge policy: shrink is refused
// when current-step would drop below MinNodes.
func (p *Pool) CanScaleDown(step int) bool {
	return p.GetCount()-step >= p.cfg.MinNodes
}

func (p *Pool) GetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.nodes)
}

// Snapshot returns a shallow copy of the live Nodes, taken under the
// lock. Runtime calls (e.g. sampling) must happen against the returned
// slice OUTSIDE the lock, so they never block forwarders touching
// nodes/next_port.
func (p *Pool) Snapshot() []*Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

func (p *Pool) GetScheduled() *Node {
	return p.scheduled.Load()
}

func (p *Pool) SetScheduled(n *Node) {
	p.scheduled.Store(n)
}

func (p *Pool) Min() int { return p.cfg.MinNodes }
func (p *Pool) Max() int { return p.cfg.MaxNodes }

func (p *Pool) Adapter() runtime.Adapter { return p.adapter }

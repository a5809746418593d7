package pool

import (
	"steel-lb/internal/runtime"
)

type NodeState int

const (
	NodeNew NodeState = iota
	NodeRunning
	NodeDead
)

func (s NodeState) String() string {
	switch s {
	case NodeNew:
		return "new"
	case NodeRunning:
		return "running"
	case NodeDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Node pairs a runtime-level container handle with the host port it
// exposes and the last memory sample the health loop took of it.
// memory_used_pct is undefined (zero) until the first successful
// sample — callers needing to distinguish "never sampled" from
// "sampled at 0%" should consult Sampled.
type Node struct {
	HostPort      int
	Handle        runtime.Handle
	MemoryUsedPct float64
	Sampled       bool
	state         NodeState
}

func newNode(hostPort int, h runtime.Handle) *Node {
	return &Node{HostPort: hostPort, Handle: h, state: NodeRunning}
}

func (n *Node) ShortID(a runtime.Adapter) string {
	return a.ShortID(n.Handle)
}

func (n *Node) State() NodeState {
	return n.state
}

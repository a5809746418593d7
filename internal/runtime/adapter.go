// Package runtime narrows the container runtime down to the four
// operations the load balancer's control plane actually needs: start a
// worker, stop-and-remove one, sample its memory usage, and read back a
// stable short identifier. Everything else the runtime can do (exec,
// logs, file copy, networks) has no caller here on purpose.
package runtime

import "context"

// Handle is an opaque reference to a running container. Its zero value
// is only ever held by a Node before power-on or after power-off.
type Handle struct {
	ID string
}

func (h Handle) Valid() bool { return h.ID != "" }

// Sample is a single non-streaming read of a container's memory
// footprint, in bytes.
type Sample struct {
	UsedBytes  int64
	LimitBytes int64
}

// UsedPct returns the sampled usage as a [0, 100] percentage of the
// configured limit. Returns 0 if the limit is not yet known.
func (s Sample) UsedPct() float64 {
	if s.LimitBytes <= 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.LimitBytes) * 100
}

// Adapter is the narrow interface spec.md §4.1 describes over the
// container runtime. All operations may fail with a runtime error;
// Sample fails with ErrMissingStats specifically when the container has
// died and the runtime no longer exposes memory fields for it — that
// failure is the sole liveness detector the health loop relies on.
type Adapter interface {
	// Start creates and starts a detached container running image, with
	// the given memory cap and a single port mapping binding hostPort
	// on the loopback interface to containerPort inside the container.
	// The caller (Pool) owns host-port allocation — hostPort is an
	// input, not a runtime-assigned value, so Pool.next_port remains
	// the single source of truth for which ports are in use.
	Start(ctx context.Context, image, memoryLimit string, containerPort, hostPort int) (Handle, error)

	// StopAndRemove stops then force-removes the container. It is
	// idempotent: calling it again on an already-removed handle is a
	// design-level no-op — runtime errors from the second call are
	// swallowed, never returned.
	StopAndRemove(ctx context.Context, h Handle)

	// Sample takes one non-streaming memory reading. Returns
	// ErrMissingStats when the container has died.
	Sample(ctx context.Context, h Handle) (Sample, error)

	// ShortID returns the first 8 characters of the runtime-assigned
	// container identifier.
	ShortID(h Handle) string
}

package audit

import (
	"context"
	"time"

	"steel-lb/internal/pool"
)

// Sink adapts pool.Event (the in-process, synchronous shape Pool and
// the health loop emit) into an Event queued through Enqueuer. Assign
// Sink.Handle to Pool.OnEvent to wire audit without the pool package
// importing audit.
type Sink struct {
	enqueuer *Enqueuer
}

func NewSink(enqueuer *Enqueuer) *Sink {
	return &Sink{enqueuer: enqueuer}
}

// Handle matches the func(pool.Event) shape Pool.OnEvent expects.
func (s *Sink) Handle(e pool.Event) {
	if s.enqueuer == nil {
		return
	}
	go s.enqueuer.Enqueue(context.Background(), toAuditEvent(e))
}

func toAuditEvent(e pool.Event) Event {
	return Event{
		Kind:     Kind(e.Kind),
		NodeIDs:  e.NodeIDs,
		PoolSize: e.PoolSize,
		Detail:   e.Detail,
		At:       time.Now(),
	}
}

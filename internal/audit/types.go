// Package audit is one-way telemetry for pool mutations and health
// passes: a live Redis pub/sub fan-out plus a durable Postgres log fed
// through an asynq queue. Nothing in audit is ever read back into
// Pool — it observes, it never decides.
package audit

import "time"

type Kind string

const (
	KindScaleUp    Kind = "scale_up"
	KindScaleDown  Kind = "scale_down"
	KindReplace    Kind = "replace"
	KindHealthPass Kind = "health_pass"
)

// Event is the durable/broadcastable shape audit stores and
// publishes, distinct from pool.Event: it carries a timestamp and is
// safe to marshal and persist independent of the pool package.
type Event struct {
	Kind     Kind      `json:"kind"`
	NodeIDs  []string  `json:"node_ids,omitempty"`
	PoolSize int       `json:"pool_size"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

func ChannelKey() string {
	return "lb:audit:events"
}

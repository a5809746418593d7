package api

import "time"

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NodeStatus is one pool.Node rendered for /status.
type NodeStatus struct {
	HostPort      int     `json:"host_port"`
	ShortID       string  `json:"short_id"`
	State         string  `json:"state"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
	Sampled       bool    `json:"sampled"`
	Scheduled     bool    `json:"scheduled"`
}

type StatusResponse struct {
	PoolSize  int          `json:"pool_size"`
	MinNodes  int          `json:"min_nodes"`
	MaxNodes  int          `json:"max_nodes"`
	Nodes     []NodeStatus `json:"nodes"`
	Timestamp string       `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

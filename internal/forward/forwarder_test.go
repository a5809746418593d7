package forward

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"steel-lb/internal/pool"
	"steel-lb/internal/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newScheduledPool(t *testing.T, hostPort int) *pool.Pool {
	t.Helper()
	p := pool.New(runtime.NewFakeAdapter(), pool.Config{
		Image: "steel-worker:latest", MemoryLimit: "280m",
		ContainerPort: 5000, LBPortStart: hostPort, MinNodes: 1, MaxNodes: 5,
	}, testLogger())
	if err := p.Add(context.Background(), 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	p.SetScheduled(p.Snapshot()[0])
	return p
}

func TestForwardNoBackendScheduled(t *testing.T) {
	p := pool.New(runtime.NewFakeAdapter(), pool.Config{MinNodes: 0, MaxNodes: 1}, testLogger())
	f := New(p, testLogger())

	if _, err := f.Forward(context.Background()); err != ErrNoBackend {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestForwardPassesThroughBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("worker-ok"))
	}))
	defer srv.Close()

	port := serverPort(t, srv)
	p := newScheduledPool(t, port)
	f := New(p, testLogger())

	body, err := f.Forward(context.Background())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(body) != "worker-ok" {
		t.Errorf("body = %q, want %q", body, "worker-ok")
	}
}

func TestForwardConnectFailureReplacesAndRetries(t *testing.T) {
	// Port with nothing listening: the pool's single node is "dead" at
	// the network level even though FakeAdapter thinks it's alive.
	p := newScheduledPool(t, 1) // unlikely to have a listener on :1
	f := New(p, testLogger())

	before := p.GetCount()
	_, err := f.Forward(context.Background())
	if err == nil {
		t.Fatalf("expected an error with no real listener behind the node")
	}

	after := p.GetCount()
	if after != before {
		t.Errorf("pool size changed from %d to %d; ReplaceFailed should keep the count stable", before, after)
	}
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse httptest URL: %v", err)
	}
	_, portStr, err := net.SplitHostPort(parsed.Host)
	if err != nil {
		t.Fatalf("split host:port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port atoi: %v", err)
	}
	return port
}

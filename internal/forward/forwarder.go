// Package forward implements the per-request hot path: read the
// scheduled Node, forward the request, and recover once from a dead
// target. Grounded on the retry-after-kill pattern used across the
// pack's orchestration proxies (HackStrix's orchestrator/proxy.go
// forwards with a bounded http.Client and triggers a worker restart on
// transport failure; this generalizes that into the bounded-retry loop
// spec.md §9 calls for in place of the source's unbounded recursion).
package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"steel-lb/internal/pool"
)

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 5 * time.Second
	maxAttempts    = 2

	readTimeoutBody = "ReadTimeout"
)

var ErrNoBackend = errors.New("no backend available")

// Forwarder forwards GET /api to whichever Node is currently
// scheduled, retrying once on a connect failure.
type Forwarder struct {
	pool   *pool.Pool
	client *http.Client
	logger *slog.Logger
}

func New(p *pool.Pool, logger *slog.Logger) *Forwarder {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Forwarder{
		pool: p,
		client: &http.Client{
			Timeout: connectTimeout + readTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
		logger: logger.With("component", "forwarder"),
	}
}

// Forward runs the per-request steps of spec.md §4.4 and returns the
// response body to write back to the client, or an error. A literal
// "ReadTimeout" body is returned as a *successful* result — no pool
// mutation happened, and the client should see 200-equivalent status.
func (f *Forwarder) Forward(ctx context.Context) ([]byte, error) {
	return f.attempt(ctx, 0)
}

func (f *Forwarder) attempt(ctx context.Context, tries int) ([]byte, error) {
	target := f.pool.GetScheduled()
	if target == nil {
		return nil, ErrNoBackend
	}

	// reqCtx is cancelled connectTimeout+readTimeout out as a backstop,
	// but the read phase gets its own readTimeout clock armed only once
	// httptrace confirms a connection was actually established — so a
	// slow dial can't eat into the worker's read budget and vice versa.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	backstop := time.AfterFunc(connectTimeout+readTimeout, cancel)
	defer backstop.Stop()

	var connected bool
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) {
			connected = true
			time.AfterFunc(readTimeout, cancel)
		},
	}
	reqCtx = httptrace.WithClientTrace(reqCtx, trace)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/", target.HostPort), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if connected && isTimeout(err) {
			// Connect succeeded, the body never arrived: the worker is
			// alive but overloaded. Don't replace it — that would mask
			// overload from the autoscaler.
			f.logger.Warn("read timeout forwarding to node", "host_port", target.HostPort)
			return []byte(readTimeoutBody), nil
		}

		// Connect error or connect-timeout: the target is dead.
		f.logger.Warn("connect failure forwarding to node, replacing", "host_port", target.HostPort, "error", err)
		if repErr := f.pool.ReplaceFailed(ctx, []*pool.Node{target}); repErr != nil {
			f.logger.Error("replace_failed during forward recovery", "error", repErr)
		}

		if tries+1 >= maxAttempts {
			return nil, ErrNoBackend
		}
		return f.attempt(ctx, tries+1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

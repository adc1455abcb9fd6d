// Package readiness gates handoff on the deployed host actually
// accepting connections. The instance API reporting "running" says
// nothing about sshd being up, so we probe the TCP port directly.
package readiness

import (
	"context"
	"net"
	"time"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/logging"
)

const (
	// DefaultTimeout is how long we wait for the port to open before
	// declaring the deployment not ready.
	DefaultTimeout = 30 * time.Second

	// pollInterval is the gap between connection attempts.
	pollInterval = 1 * time.Second

	// dialTimeout bounds a single connection attempt so a blackholed
	// SYN does not eat the whole budget.
	dialTimeout = 3 * time.Second
)

// Gate polls a TCP endpoint until it accepts a connection.
type Gate struct {
	Timeout time.Duration
	// Interval overrides the poll interval; zero means pollInterval.
	Interval time.Duration
}

func NewGate(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{Timeout: timeout}
}

// Wait blocks until addr (host:port) accepts a TCP connection or the
// timeout elapses. The total wait never exceeds the configured timeout
// plus one poll interval. Failure is READINESS_TIMEOUT; the caller must
// not proceed to handoff.
func (g *Gate) Wait(ctx context.Context, addr string) error {
	interval := g.Interval
	if interval <= 0 {
		interval = pollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: dialTimeout}

	// Probe immediately, then on every tick.
	if tryDial(ctx, dialer, addr) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return apperrors.Newf(apperrors.CodeReadinessTimeout,
				"endpoint %s did not accept connections within %s", addr, g.Timeout).
				WithOperation("readiness")
		case <-ticker.C:
			if tryDial(ctx, dialer, addr) {
				return nil
			}
		}
	}
}

func tryDial(ctx context.Context, dialer *net.Dialer, addr string) bool {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logging.Debug("readiness probe failed", "addr", addr, "error", err)
		return false
	}
	conn.Close()
	logging.Debug("readiness probe succeeded", "addr", addr)
	return true
}

package readiness

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
)

func TestGate_Ready(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	gate := NewGate(5 * time.Second)
	assert.NoError(t, gate.Wait(context.Background(), ln.Addr().String()))
}

func TestGate_BecomesReady(t *testing.T) {
	// Reserve a port, close it, then start listening shortly after the
	// gate begins polling.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		time.Sleep(150 * time.Millisecond)
		if l, err := net.Listen("tcp", addr); err == nil {
			defer l.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	gate := &Gate{Timeout: 5 * time.Second, Interval: 50 * time.Millisecond}
	assert.NoError(t, gate.Wait(context.Background(), addr))
}

func TestGate_Timeout(t *testing.T) {
	// Reserve then close a port so nothing is listening.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	timeout := 300 * time.Millisecond
	gate := &Gate{Timeout: timeout, Interval: 50 * time.Millisecond}

	start := time.Now()
	err = gate.Wait(context.Background(), addr)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeReadinessTimeout, apperrors.CodeOf(err))
	// The wait is bounded: at least the timeout, at most one extra
	// poll interval of slop.
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestNewGate_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewGate(0).Timeout)
	assert.Equal(t, 10*time.Second, NewGate(10*time.Second).Timeout)
}

package state

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend is a store for one environment's applied state. At most one
// writer may hold the lock at a time; Read and Write must only be called
// between a successful Lock and the matching Unlock.
type Backend interface {
	// Read loads the state, returning an empty state when none exists yet.
	Read(ctx context.Context) (*ir.State, error)

	// Write persists the state.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires the environment's exclusive lock. Contention is
	// retried with backoff for a bounded number of attempts, then
	// surfaces STATE_CONFLICT.
	Lock(ctx context.Context) error

	// Unlock releases the lock.
	Unlock(ctx context.Context) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Type     string            `mapstructure:"type"` // "local" or "s3"
	Settings map[string]string `mapstructure:"settings"`
}

// NewBackend builds a state backend from configuration.
func NewBackend(ctx context.Context, cfg *Config, environment string) (Backend, error) {
	if cfg == nil || cfg.Type == "" || cfg.Type == "local" {
		var settings map[string]string
		if cfg != nil {
			settings = cfg.Settings
		}
		return newLocalBackend(settings, environment)
	}
	switch cfg.Type {
	case "s3":
		return newS3Backend(ctx, cfg.Settings, environment)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

const (
	lockAttempts  = 3
	lockBaseDelay = 2 * time.Second
)

// errLockHeld is returned by backend lock probes when another writer
// holds the lock. acquireWithRetry translates it to STATE_CONFLICT.
type errLockHeld struct {
	holder string
}

func (e *errLockHeld) Error() string {
	return fmt.Sprintf("state lock held by %s", e.holder)
}

// acquireWithRetry attempts fn up to lockAttempts times, backing off
// between attempts held by another writer. Other failures abort
// immediately.
func acquireWithRetry(ctx context.Context, environment string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < lockAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var held *errLockHeld
		if !apperrors.As(lastErr, &held) {
			return lastErr
		}
		if attempt < lockAttempts-1 {
			delay := lockBaseDelay << attempt
			logging.Debug("state lock contended, backing off",
				"environment", environment, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return apperrors.Wrap(ctx.Err(), apperrors.CodeStateConflict, "lock wait cancelled").
					WithResource(environment).WithOperation("lock")
			case <-time.After(delay):
			}
		}
	}
	return apperrors.Wrap(lastErr, apperrors.CodeStateConflict,
		"could not acquire state lock, another apply is in progress").
		WithResource(environment).WithOperation("lock")
}

func marshalState(state *ir.State) ([]byte, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateWrite, "failed to serialize state")
	}
	return append(data, '\n'), nil
}

func unmarshalState(data []byte) (*ir.State, error) {
	var state ir.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateParse, "failed to parse state file")
	}
	if state.Outputs == nil {
		state.Outputs = ir.OutputSet{}
	}
	return &state, nil
}

package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
)

// staleLockAge is how old a local lock file must be before it is assumed
// abandoned and taken over.
const staleLockAge = 10 * time.Minute

// localBackend stores state in a JSON file next to the environment
// declaration, with a sibling .lock file for mutual exclusion.
type localBackend struct {
	path        string
	environment string
}

func newLocalBackend(settings map[string]string, environment string) (Backend, error) {
	path := settings["path"]
	if path == "" {
		path = filepath.Join(".shiplift", fmt.Sprintf("%s.state.json", environment))
	}
	return &localBackend{path: path, environment: environment}, nil
}

func (b *localBackend) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ir.NewState(b.environment), nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodeStateRead, "failed to read state file").
			WithResource(b.environment).WithOperation("read")
	}

	raw, err = Decrypt(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateRead, "failed to decrypt state file").
			WithResource(b.environment).WithOperation("read")
	}

	return unmarshalState(raw)
}

func (b *localBackend) Write(ctx context.Context, state *ir.State) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateWrite, "failed to create state directory").
			WithResource(b.environment).WithOperation("write")
	}

	data, err := marshalState(state)
	if err != nil {
		return err
	}
	data, err = Encrypt(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateWrite, "failed to encrypt state").
			WithResource(b.environment).WithOperation("write")
	}

	if err := os.WriteFile(b.path, data, 0o600); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateWrite, "failed to write state file").
			WithResource(b.environment).WithOperation("write")
	}
	return nil
}

func (b *localBackend) Lock(ctx context.Context) error {
	return acquireWithRetry(ctx, b.environment, b.tryLock)
}

func (b *localBackend) tryLock(ctx context.Context) error {
	lockPath := b.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStateConflict, "failed to create lock directory").
			WithResource(b.environment).WithOperation("lock")
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	// O_EXCL makes creation the atomic acquire.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		_, werr := f.WriteString(content)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		return werr
	}
	if !os.IsExist(err) {
		return apperrors.Wrap(err, apperrors.CodeStateConflict, "failed to create lock file").
			WithResource(b.environment).WithOperation("lock")
	}

	info, statErr := os.Stat(lockPath)
	if statErr == nil && time.Since(info.ModTime()) > staleLockAge {
		// Abandoned lock from a dead process: take it over.
		_ = os.Remove(lockPath)
		return b.tryLock(ctx)
	}

	return &errLockHeld{holder: lockPath}
}

func (b *localBackend) Unlock(ctx context.Context) error {
	if err := os.Remove(b.lockPath()); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(err, apperrors.CodeStateConflict, "failed to remove lock file").
			WithResource(b.environment).WithOperation("unlock")
	}
	return nil
}

func (b *localBackend) lockPath() string {
	return b.path + ".lock"
}

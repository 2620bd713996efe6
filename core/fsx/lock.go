package fsx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 25 * time.Millisecond

// ErrLockTimeout is returned when another process holds the lock for longer
// than the caller is willing to wait.
var ErrLockTimeout = errors.New("file lock timeout")

// LockPath is the lock file guarding path. It lives under os.TempDir so the
// directory holding path gains no extra files. Every spelling of the same
// file maps to one lock.
func LockPath(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve lock target %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(absolute); err == nil {
		absolute = resolved
	}
	sum := sha256.Sum256([]byte(absolute))
	return filepath.Join(os.TempDir(), "buildstamp-locks", filepath.Base(absolute)+"-"+hex.EncodeToString(sum[:8])+".lock"), nil
}

// WithFileLock runs fn while holding an exclusive advisory lock on
// LockPath(path). The lock file is left in place; flock state is what matters.
func WithFileLock(ctx context.Context, path string, timeout time.Duration, fn func() error) error {
	lockPath, err := LockPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	locked, err := lock.TryLockContext(lockCtx, lockRetry)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, lock.Path())
		}
		return fmt.Errorf("acquire lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockTimeout, lock.Path())
	}
	defer func() {
		_ = lock.Unlock()
	}()
	return fn()
}

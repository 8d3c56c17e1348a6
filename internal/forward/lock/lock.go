// Package lock provides the named directory lock that keeps two builders
// from sharing a directory's temporary files. The lock file records its
// owner; on unix the ownership itself is an flock on that file, so a holder
// that dies leaves a file but no lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/resilience"
)

// Policy bounds the wait for a held lock.
type Policy struct {
	MaxAttempts int
	Sleep       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Sleep: 100 * time.Millisecond}
}

var errHeld = errors.New("lock held")

// Lock is an acquired lock file. Release it exactly once.
type Lock struct {
	path     string
	file     *os.File
	owner    string
	acquired time.Time
	waited   time.Duration
	attempts int
	logger   *slog.Logger
}

// Acquire locks dir/name, creating it when missing. While another owner
// holds it the attempt is repeated policy.MaxAttempts times, policy.Sleep
// apart. Exhaustion yields ErrLockTimeout; cancelling ctx stops the wait.
func Acquire(ctx context.Context, dir, name string, policy Policy) (*Lock, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Sleep <= 0 {
		policy.Sleep = time.Millisecond
	}
	l := &Lock{
		path:   filepath.Join(dir, name),
		owner:  uuid.NewString(),
		logger: slog.Default().With("component", "lock", "path", filepath.Join(dir, name)),
	}
	start := time.Now()
	cfg := resilience.FixedRetry(policy.MaxAttempts, policy.Sleep)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errHeld) }
	err := resilience.Retry(ctx, "lock "+name, cfg, func() error {
		l.attempts++
		return l.tryLock()
	})
	l.waited = time.Since(start)
	if err != nil {
		var exhausted *resilience.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%w: %s after %d attempts", apperrors.ErrLockTimeout, l.path, exhausted.Attempts)
		}
		return nil, fmt.Errorf("acquiring %s: %w", l.path, err)
	}
	l.acquired = time.Now()
	if l.attempts > 1 {
		l.logger.Info("lock obtained after waiting", "attempts", l.attempts, "waited", l.waited)
	}
	return l, nil
}

func (l *Lock) tryLock() error {
	f, err := openLocked(l.path)
	if err != nil {
		return err
	}
	if err := writeOwner(f, l.owner); err != nil {
		unlock(f)
		f.Close()
		return fmt.Errorf("writing lock owner: %w", err)
	}
	l.file = f
	return nil
}

func writeOwner(f *os.File, owner string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(owner+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}

// Waited reports how long Acquire blocked.
func (l *Lock) Waited() time.Duration { return l.waited }

func (l *Lock) Attempts() int { return l.attempts }

func (l *Lock) Path() string { return l.path }

// Release removes the lock file if this lock still owns it and drops the
// lock. A file rewritten by someone else is left in place.
func (l *Lock) Release() error {
	defer func() {
		unlock(l.file)
		l.file.Close()
	}()
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("releasing %s: %w", l.path, err)
	}
	if strings.TrimSpace(string(data)) != l.owner {
		return fmt.Errorf("releasing %s: owned by %q", l.path, strings.TrimSpace(string(data)))
	}
	// Removed while still locked; waiters holding the old inode notice the
	// unlink in openLocked and retry.
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("releasing %s: %w", l.path, err)
	}
	l.logger.Debug("lock released", "held", time.Since(l.acquired))
	return nil
}

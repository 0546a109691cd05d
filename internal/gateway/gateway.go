// Package gateway serializes every remote-mutating call. The remote importer
// runs a single import worker, so only one catalog mutation or import may be
// in flight per process (and, with a lock file, per host).
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"
)

// lockRetryDelay is how often a held lock file is re-checked.
const lockRetryDelay = 500 * time.Millisecond

// Gateway owns the single mutual-exclusion domain. Construct one at startup
// and share it with every caller.
type Gateway struct {
	sem        *semaphore.Weighted
	fileLock   *flock.Flock
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates a gateway. When lockFile is non-empty the gateway additionally
// holds an exclusive file lock, serializing separate processes on one host.
func New(lockFile string, logger *slog.Logger) (*Gateway, error) {
	g := &Gateway{
		sem:        semaphore.NewWeighted(1),
		retryDelay: lockRetryDelay,
		logger:     logger,
	}
	if lockFile != "" {
		if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
			return nil, fmt.Errorf("creating lock directory: %w", err)
		}
		g.fileLock = flock.New(lockFile)
	}
	return g, nil
}

// Do runs fn while holding the gateway lock. Acquisition waits indefinitely
// unless ctx is cancelled. The error from fn is returned unchanged.
func (g *Gateway) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	waitStart := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for gateway lock (%s): %w", operation, err)
	}
	defer g.sem.Release(1)

	if g.fileLock != nil {
		locked, err := g.fileLock.TryLockContext(ctx, g.retryDelay)
		if err != nil {
			return fmt.Errorf("acquiring gateway lock file (%s): %w", operation, err)
		}
		if !locked {
			return fmt.Errorf("gateway lock file %s not acquired", g.fileLock.Path())
		}
		defer func() {
			if err := g.fileLock.Unlock(); err != nil {
				g.logger.Error("failed to release gateway lock file", "path", g.fileLock.Path(), "error", err)
			}
		}()
	}

	held := time.Now()
	g.logger.Debug("gateway lock acquired", "operation", operation, "waited", held.Sub(waitStart))
	err := fn(ctx)
	g.logger.Debug("gateway lock released", "operation", operation, "held", time.Since(held))
	return err
}

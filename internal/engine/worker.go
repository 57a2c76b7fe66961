package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"octosurf/internal/acquire"
	"octosurf/internal/aggregate"
	"octosurf/internal/discovery"
	"octosurf/internal/logging"
	"octosurf/internal/scanner"
)

// DefaultScanDelay separates acquisition from scanning so that many
// concurrent units of work do not exhaust file descriptors at once.
const DefaultScanDelay = 100 * time.Millisecond

var (
	ErrMissingOwner    = errors.New("repository has no owner")
	ErrMissingCloneURL = errors.New("repository has no clone URL")
)

// Worker runs the acquire, scan, remove sequence for one repository.
type Worker struct {
	Acquirer acquire.Acquirer
	Matcher  *scanner.Matcher
	BaseDir  string
	Remove   bool
	Delay    time.Duration
	Logger   *zap.Logger
}

// Process returns the repository's counts, or the first error encountered.
// A removal failure after a successful scan is still a failure.
func (w *Worker) Process(ctx context.Context, d discovery.Descriptor) (aggregate.Record, error) {
	if d.Owner == "" {
		return aggregate.Record{}, fmt.Errorf("%s: %w", d.Name, ErrMissingOwner)
	}
	if d.CloneURL == "" {
		return aggregate.Record{}, fmt.Errorf("%s: %w", d.FullName(), ErrMissingCloneURL)
	}

	logger := w.logger().With(zap.String("repo", d.FullName()))

	path, err := w.Acquirer.Ensure(ctx, w.BaseDir, d.Owner, d.Name, d.CloneURL)
	if err != nil {
		return aggregate.Record{}, err
	}
	logging.Trace(logger, "working copy ready", zap.String("path", path))

	if err := sleepContext(ctx, w.Delay); err != nil {
		return aggregate.Record{}, err
	}

	counts, err := w.Matcher.ScanTree(ctx, path)
	if err != nil {
		return aggregate.Record{}, err
	}
	logger.Debug("scanned repository", zap.Int("patterns_matched", len(counts)))

	if w.Remove {
		if err := w.Acquirer.Remove(path); err != nil {
			return aggregate.Record{}, err
		}
	}

	return aggregate.Record{Repo: d.FullName(), Counts: counts}, nil
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"octosurf/internal/acquire"
	"octosurf/internal/aggregate"
	"octosurf/internal/budget"
	"octosurf/internal/config"
	"octosurf/internal/discovery"
	gh "octosurf/internal/github"
	"octosurf/internal/metrics"
	"octosurf/internal/patterns"
	"octosurf/internal/scanner"
)

// ExitCode maps a run outcome to the process exit status.
//
//	0 = clean run
//	2 = partial failure (some repositories failed)
//	3 = fatal error (no report, or report/cleanup failed)
func ExitCode(s Summary, err error) int {
	return exitCodeForRun(err != nil, s.Failed > 0)
}

func exitCodeForRun(fatal, partial bool) int {
	if fatal {
		return 3
	}
	if partial {
		return 2
	}
	return 0
}

// Summary counts what a run did.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Pages     int
}

// Deps are the collaborators a run needs beyond its config.
type Deps struct {
	Client *gh.Client
	// Acquirer overrides the backend selected by cfg.Scan.GitBackend.
	Acquirer acquire.Acquirer
	// Token authenticates the go-git backend.
	Token   string
	Logger  *zap.Logger
	Metrics *metrics.Recorder
	// BudgetOptions are applied to the rate-limit budget (clock, sleep).
	BudgetOptions []budget.Option
	// ScanDelay overrides DefaultScanDelay; negative disables the delay.
	ScanDelay time.Duration
}

type Engine struct {
	client     *gh.Client
	acquirer   acquire.Acquirer
	token      string
	logger     *zap.Logger
	metrics    *metrics.Recorder
	budgetOpts []budget.Option
	scanDelay  time.Duration
}

func NewEngine(d Deps) (*Engine, error) {
	if d.Client == nil {
		return nil, errors.New("github client is nil")
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	delay := d.ScanDelay
	if delay == 0 {
		delay = DefaultScanDelay
	}
	return &Engine{
		client:     d.Client,
		acquirer:   d.Acquirer,
		token:      d.Token,
		logger:     logger,
		metrics:    d.Metrics,
		budgetOpts: d.BudgetOptions,
		scanDelay:  delay,
	}, nil
}

type outcome struct {
	desc    discovery.Descriptor
	record  aggregate.Record
	err     error
	elapsed time.Duration
}

// Run discovers, acquires and scans repositories, then writes the report.
//
// Configuration errors abort before any network or filesystem work. Per
// repository failures are logged and counted. A discovery error still waits
// for every launched unit of work but produces no report.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) (Summary, error) {
	var summary Summary
	if ctx == nil {
		return summary, errors.New("context is nil")
	}
	if cfg == nil {
		return summary, errors.New("config is nil")
	}

	set, err := patterns.LoadFile(cfg.Scan.QueryFile)
	if err != nil {
		return summary, fmt.Errorf("failed to load patterns: %w", err)
	}

	query, err := discovery.Query{
		Keywords:  cfg.Search.Keywords,
		Languages: cfg.Search.Languages,
		Pushed:    cfg.Search.Pushed,
		Stars:     cfg.Search.Stars,
		Topics:    cfg.Search.Topics,
	}.Build()
	if err != nil {
		return summary, err
	}

	acq := e.acquirer
	if acq == nil {
		acq, err = acquire.New(acquire.Backend(cfg.Scan.GitBackend), acquire.Options{
			GitBinary: cfg.Scan.GitBinary,
			Token:     e.token,
			Logger:    e.logger.Named("acquire"),
		})
		if err != nil {
			return summary, err
		}
	}

	e.logger.Info("starting run",
		zap.String("query", query),
		zap.Int("patterns", set.Len()),
		zap.String("target_dir", cfg.Scan.TargetDir),
		zap.Bool("remove", cfg.Scan.Remove),
		zap.Int("concurrency", cfg.Scan.Concurrency))

	b := budget.New(discovery.RateLimitSource{Client: e.client}, e.logger.Named("budget"), e.budgetOpts...)
	b.OnWait = func(reason budget.WaitReason, _ time.Duration) {
		e.metrics.RateLimitWait(string(reason))
	}

	searchRate := cfg.Search.Rate
	if searchRate <= 0 {
		searchRate = -1
	}
	disc := discovery.New(e.client, b, discovery.Options{
		SearchRate: searchRate,
		Logger:     e.logger.Named("discovery"),
		OnPage:     e.metrics.SearchPage,
	})

	worker := &Worker{
		Acquirer: acq,
		Matcher:  scanner.NewMatcher(set),
		BaseDir:  cfg.Scan.TargetDir,
		Remove:   cfg.Scan.Remove,
		Delay:    e.scanDelay,
		Logger:   e.logger.Named("worker"),
	}
	agg := aggregate.New(set, e.logger)

	// A single collector owns the counters and the aggregator inserts.
	outcomes := make(chan outcome)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			if o.err != nil {
				summary.Failed++
				e.metrics.RepoDone(metrics.OutcomeFailed, o.elapsed)
				e.logger.Error("repository failed", zap.String("repo", o.desc.FullName()), zap.Error(o.err))
				continue
			}
			summary.Succeeded++
			e.metrics.RepoDone(metrics.OutcomeSucceeded, o.elapsed)
			e.metrics.Matches(o.record.Counts)
			agg.Add(o.record)
		}
	}()

	var g errgroup.Group
	if cfg.Scan.Concurrency > 0 {
		g.SetLimit(cfg.Scan.Concurrency)
	}

	cleanup := make(map[string]struct{})
	// Search results may repeat a repository; two units on one working copy
	// would race, so only the first occurrence is processed.
	seen := make(map[string]struct{})
	pages := disc.Search(query)
	var discoveryErr error
	for {
		items, ok, err := pages.Next(ctx)
		if err != nil {
			discoveryErr = err
			break
		}
		if !ok {
			break
		}
		for _, d := range items {
			if _, dup := seen[d.FullName()]; dup {
				e.logger.Warn("skipping repeated search result", zap.String("repo", d.FullName()))
				continue
			}
			seen[d.FullName()] = struct{}{}
			if cfg.Scan.Remove && d.Owner != "" {
				cleanup[acquire.OwnerPath(cfg.Scan.TargetDir, d.Owner)] = struct{}{}
			}
			summary.Total++
			g.Go(func() error {
				start := time.Now()
				rec, err := worker.Process(ctx, d)
				outcomes <- outcome{desc: d, record: rec, err: err, elapsed: time.Since(start)}
				return nil
			})
		}
	}

	_ = g.Wait()
	close(outcomes)
	<-collected
	summary.Pages = pages.Pages()

	e.logger.Info("run finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("pages", summary.Pages))

	var runErr error
	if discoveryErr != nil {
		e.logger.Error("discovery failed, no report written",
			zap.String("reason", presentAPIError(discoveryErr, cfg.Log.VerboseHTTP)))
		runErr = &DiscoveryError{Err: discoveryErr}
	} else {
		if err := agg.WriteFile(cfg.Output.Out); err != nil {
			runErr = err
		} else {
			e.logger.Info("wrote report", zap.String("path", cfg.Output.Out), zap.Int("rows", agg.Len()))
		}
		if err := removeOwnerDirs(cleanup, e.logger); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	if cfg.Output.MetricsFile != "" && e.metrics != nil {
		if err := e.metrics.WriteFile(cfg.Output.MetricsFile); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	return summary, runErr
}

// removeOwnerDirs removes each recorded owner directory, which must be empty
// by now. Missing directories are fine. Every path is attempted.
func removeOwnerDirs(dirs map[string]struct{}, logger *zap.Logger) error {
	paths := make([]string, 0, len(dirs))
	for p := range dirs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var errs []error
	for _, p := range paths {
		err := os.Remove(p)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			logger.Debug("removed owner directory", zap.String("path", p))
			continue
		}
		errs = append(errs, &acquire.FilesystemError{Op: "remove", Path: p, Err: err})
	}
	return errors.Join(errs...)
}

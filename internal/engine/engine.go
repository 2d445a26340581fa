package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/opera-farm/internal/browser"
	"github.com/xkilldash9x/opera-farm/internal/farm"
	"github.com/xkilldash9x/opera-farm/internal/observability"
)

// -- Interfaces for Dependency Inversion --

// Runner farms a single profile. *farm.Workflow implements it.
type Runner interface {
	Run(ctx context.Context, p farm.Profile, profileNum int) *farm.RunReport
}

// Recorder persists finished runs. *store.Store implements it.
type Recorder interface {
	RecordRun(ctx context.Context, report *farm.RunReport) error
}

const recordTimeout = 10 * time.Second

// Engine farms a batch of profiles with bounded concurrency.
type Engine struct {
	runner      Runner
	recorder    Recorder
	concurrency int
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder persists every report.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithConcurrency sets how many profiles run at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates an Engine. Without options it runs one profile at a time and
// records nothing.
func New(runner Runner, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		runner:      runner,
		concurrency: 1,
		logger:      logger.With(zap.String("component", "engine")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary aggregates the reports of one batch.
type Summary struct {
	Reports []*farm.RunReport
	Runs    int
	Failed  int
	// Earned sums the deltas of runs whose readings are both known;
	// Unmeasured counts the rest.
	Earned     int
	Unmeasured int
	Skipped    int
}

func (s *Summary) add(r *farm.RunReport) {
	s.Reports = append(s.Reports, r)
	s.Runs++
	if r.Failed() {
		s.Failed++
	}
	if delta, ok := r.Delta(); ok {
		s.Earned += delta
	} else {
		s.Unmeasured++
	}
}

// Run farms every profile and waits for all started runs to finish.
// Reports keep the order of profiles. Each profile's launch is staggered by
// its position within the concurrency window. When ctx is canceled no new
// profile starts; the ones already running still finalize, and ctx's error
// is returned alongside the partial summary.
func (e *Engine) Run(ctx context.Context, profiles []farm.Profile) (*Summary, error) {
	e.logger.Info("Starting farming batch.", zap.Int("profiles", len(profiles)), zap.Int("concurrency", e.concurrency))

	reports := make([]*farm.RunReport, len(profiles))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, p := range profiles {
		if ctx.Err() != nil {
			break
		}
		i, p := i, p
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			report := e.runOne(ctx, p, i%e.concurrency)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{}
	for _, r := range reports {
		if r == nil {
			summary.Skipped++
			continue
		}
		summary.add(r)
	}

	e.logger.Info("Farming batch finished.",
		zap.Int("runs", summary.Runs),
		zap.Int("failed", summary.Failed),
		zap.Int("earned", summary.Earned),
		zap.Int("unmeasured", summary.Unmeasured),
		zap.Int("skipped", summary.Skipped),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("farming interrupted after %d of %d profiles: %w", summary.Runs, len(profiles), err)
	}
	return summary, nil
}

func (e *Engine) runOne(ctx context.Context, p farm.Profile, profileNum int) *farm.RunReport {
	report := e.runner.Run(ctx, p, profileNum)
	if report == nil {
		report = &farm.RunReport{
			ProfileID: p.ID(),
			Start:     farm.UnknownPoints(nil),
			End:       farm.UnknownPoints(nil),
			Err:       fmt.Errorf("runner returned no report"),
		}
	}
	if e.recorder == nil {
		return report
	}

	// A canceled batch still records what its runs did.
	recordCtx, cancel := context.WithTimeout(browser.Detach(ctx), recordTimeout)
	defer cancel()
	if err := e.recorder.RecordRun(recordCtx, report); err != nil {
		observability.ForProfile(e.logger, p.ID()).Error("Failed to record run.", observability.ErrorSummary(err))
	}
	return report
}

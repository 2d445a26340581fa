// internal/farm/workflow.go
package farm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/browser"
	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/prompt"
)

const defaultFinalizeTimeout = 30 * time.Second

// Sleeper waits between UI steps. The UI gives no reliable readiness signal
// for several transitions, so the workflow settles with fixed delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workflow farms points for one profile at a time. A single Workflow can be
// shared by concurrent runs of different profiles.
type Workflow struct {
	cfg     config.WorkflowConfig
	site    config.SiteConfig
	wallet  config.WalletConfig
	sel     config.SelectorsConfig
	prompts prompt.Generator
	logger  *zap.Logger

	sleeper Sleeper
	now     func() time.Time
	newID   func() string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithSleeper replaces the real timer based delays.
func WithSleeper(s Sleeper) Option {
	return func(w *Workflow) { w.sleeper = s }
}

// WithSeed makes the prompt count and response waits reproducible.
func WithSeed(seed int64) Option {
	return func(w *Workflow) { w.rng = rand.New(rand.NewSource(seed)) }
}

// WithClock overrides time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// New builds a workflow from validated configuration.
func New(cfg *config.Config, prompts prompt.Generator, logger *zap.Logger, opts ...Option) (*Workflow, error) {
	if cfg == nil {
		return nil, errors.New("farm: configuration is required")
	}
	if prompts == nil {
		return nil, errors.New("farm: prompt generator is required")
	}
	if cfg.Wallet.Password == "" {
		return nil, errors.New("farm: wallet password is required")
	}
	if err := cfg.Workflow.Validate(); err != nil {
		return nil, fmt.Errorf("farm: %w", err)
	}

	w := &Workflow{
		cfg:     cfg.Workflow,
		site:    cfg.Site,
		wallet:  cfg.Wallet,
		sel:     cfg.Selectors,
		prompts: prompts,
		logger:  logger.Named("farm"),
		sleeper: timerSleeper{},
		now:     time.Now,
		newID:   uuid.NewString,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if w.cfg.FinalizeTimeout <= 0 {
		w.cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Workflow) sleep(ctx context.Context, d time.Duration) error {
	return w.sleeper.Sleep(ctx, d)
}

// promptCount draws uniformly from [prompts_min, prompts_max].
func (w *Workflow) promptCount() int {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return w.cfg.PromptsMin + w.rng.Intn(w.cfg.PromptsMax-w.cfg.PromptsMin+1)
}

// responseWait draws uniformly from [response_wait_min, response_wait_max].
func (w *Workflow) responseWait() time.Duration {
	spread := w.cfg.ResponseWaitMax - w.cfg.ResponseWaitMin
	if spread <= 0 {
		return w.cfg.ResponseWaitMin
	}
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return w.cfg.ResponseWaitMin + time.Duration(w.rng.Int63n(int64(spread)+1))
}

// switchTo focuses tab, failing clearly when the tab was never recorded.
func switchTo(ctx context.Context, run *ProfileRun, tab browser.Tab, name string) error {
	if tab == "" {
		return fmt.Errorf("%s tab is not open", name)
	}
	if err := run.Driver.SwitchTo(ctx, tab); err != nil {
		return fmt.Errorf("switching to %s tab: %w", name, err)
	}
	return nil
}

// present reports whether selector currently matches anything.
func present(ctx context.Context, run *ProfileRun, selector string) (bool, error) {
	n, err := run.Driver.Count(ctx, selector)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

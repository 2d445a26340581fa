// internal/farm/run.go
package farm

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/browser"
	"github.com/xkilldash9x/opera-farm/internal/observability"
)

// step is one unit of the supervised run. A critical step that fails aborts
// the run; a recoverable one is logged and the run carries on.
type step struct {
	name     string
	reaches  Stage
	critical bool
	do       func(ctx context.Context, run *ProfileRun, report *RunReport) error
}

func (w *Workflow) steps(profileNum int) []step {
	return []step{
		{name: "stagger", reaches: StageIdle, critical: true, do: func(ctx context.Context, _ *ProfileRun, _ *RunReport) error {
			return w.sleep(ctx, time.Duration(profileNum)*w.cfg.Stagger)
		}},
		{name: "open profile", reaches: StageProfileOpened, critical: true, do: w.openProfile},
		{name: "open wallet", reaches: StageWalletUnlocked, critical: true, do: func(ctx context.Context, run *ProfileRun, _ *RunReport) error {
			_, err := w.OpenWallet(ctx, run)
			return err
		}},
		{name: "select wallet", reaches: StageWalletSelected, do: func(ctx context.Context, run *ProfileRun, report *RunReport) error {
			switched, err := w.SelectWallet(ctx, run)
			report.WalletSwitched = switched
			return err
		}},
		{name: "sign in", reaches: StageSignedIn, critical: true, do: func(ctx context.Context, run *ProfileRun, _ *RunReport) error {
			return w.signInUntilDone(ctx, run)
		}},
		{name: "read starting points", do: func(ctx context.Context, run *ProfileRun, report *RunReport) error {
			report.Start = w.EarnedPoints(ctx, run)
			return nil
		}},
		{name: "farm daily points", reaches: StageDailyPointsChecked, do: func(ctx context.Context, run *ProfileRun, report *RunReport) error {
			outcome, err := w.FarmDailyPoints(ctx, run)
			report.CheckIn = outcome
			return err
		}},
		{name: "farm prompts", reaches: StagePromptsSubmitted, do: w.farmPrompts},
		{name: "read final points", do: func(ctx context.Context, run *ProfileRun, report *RunReport) error {
			report.End = w.EarnedPoints(ctx, run)
			return nil
		}},
	}
}

// Run farms one profile from launch to close. profileNum staggers the
// launch by that many stagger intervals. The profile is finalized exactly
// once whatever happens, and the returned report is never nil.
func (w *Workflow) Run(ctx context.Context, p Profile, profileNum int) *RunReport {
	report := &RunReport{
		RunID:         w.newID(),
		ProfileID:     p.ID(),
		WalletAddress: p.WalletAddress(),
		StartedAt:     w.now(),
		Start:         UnknownPoints(nil),
		End:           UnknownPoints(nil),
	}
	run := &ProfileRun{
		Profile: p,
		Stage:   StageIdle,
		Logger:  observability.ForRun(w.logger, p.ID(), report.RunID),
	}
	defer w.finalize(ctx, run, report)

	for _, s := range w.steps(profileNum) {
		err := w.runStep(ctx, run, report, s)
		interrupted := ctx.Err() != nil
		if err == nil && !interrupted {
			run.advance(s.reaches)
			continue
		}
		if interrupted && !errors.Is(err, ctx.Err()) {
			// A step that swallows cancellation still ends the run.
			err = errors.Join(err, ctx.Err())
		}
		if s.critical || interrupted {
			report.Err = fmt.Errorf("%s: %w", s.name, err)
			run.Logger.Error("Farming aborted.",
				zap.String("step", s.name),
				zap.Stringer("stage", run.Stage),
				observability.ErrorSummary(err),
			)
			return report
		}
		run.Logger.Error("Step failed; continuing.", zap.String("step", s.name), observability.ErrorSummary(err))
	}
	return report
}

// runStep executes s, turning a panic into an error so finalization still
// happens.
func (w *Workflow) runStep(ctx context.Context, run *ProfileRun, report *RunReport, s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			run.Logger.Error("Step panicked.", zap.String("step", s.name), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.do(ctx, run, report)
}

func (w *Workflow) openProfile(ctx context.Context, run *ProfileRun, _ *RunReport) error {
	d, err := run.Profile.Open(ctx)
	if err != nil {
		return err
	}
	run.Driver = d

	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	// Leftovers from an earlier run would confuse tab switching.
	if err := w.CloseRelatedTabs(ctx, run); err != nil {
		run.Logger.Warn("Could not close leftover tabs.", observability.ErrorSummary(err))
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}

	tab, err := d.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("opening site tab: %w", err)
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	if err := d.Navigate(ctx, w.site.LandingURL()); err != nil {
		return err
	}
	if err := d.WaitVisible(ctx, w.sel.PageBody); err != nil {
		return err
	}
	run.SiteTab = tab
	return nil
}

func (w *Workflow) farmPrompts(ctx context.Context, run *ProfileRun, report *RunReport) error {
	report.PromptsPlanned = w.promptCount()
	run.Logger.Info("Farming prompt points.", zap.Int("prompts", report.PromptsPlanned))

	// Individual failures do not stop the loop; cancellation does.
	for i := 0; i < report.PromptsPlanned; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res := w.FarmPromptPoint(ctx, run); res.Sent {
			report.PromptsSent++
		}
	}
	return ctx.Err()
}

// finalize closes related tabs and the profile. It runs on a context
// detached from ctx so a canceled run is still cleaned up.
func (w *Workflow) finalize(ctx context.Context, run *ProfileRun, report *RunReport) {
	report.Reached = run.Stage

	cleanupCtx, cancel := context.WithTimeout(browser.Detach(ctx), w.cfg.FinalizeTimeout)
	defer cancel()

	func() {
		defer func() {
			if r := recover(); r != nil {
				run.Logger.Error("Finalizing panicked.", zap.Any("panic", r))
			}
		}()
		if run.Driver != nil {
			if err := w.CloseRelatedTabs(cleanupCtx, run); err != nil {
				run.Logger.Error("Could not close tabs while finalizing.", observability.ErrorSummary(err))
			}
		}
		if err := run.Profile.Close(cleanupCtx); err != nil {
			run.Logger.Error("Could not close profile.", observability.ErrorSummary(err))
		}
	}()

	run.Driver = nil
	run.advance(StageFinalized)
	report.Finalized = true
	report.FinishedAt = w.now()

	fields := []zap.Field{
		zap.Stringer("reached", report.Reached),
		zap.Stringer("check_in", report.CheckIn),
		zap.Int("prompts_sent", report.PromptsSent),
		zap.Int("prompts_planned", report.PromptsPlanned),
		zap.Duration("duration", report.Duration()),
	}
	if delta, ok := report.Delta(); ok {
		fields = append(fields, zap.Int("earned", delta), zap.Int("total", report.End.Value))
	} else {
		fields = append(fields, zap.Bool("points_unknown", true))
	}

	if report.Failed() {
		run.Logger.Error("Profile finalized after failure.", append(fields, observability.ErrorSummary(report.Err))...)
		return
	}
	run.Logger.Info("Successfully farmed.", fields...)
}

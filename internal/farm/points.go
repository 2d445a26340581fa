// internal/farm/points.go
package farm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/observability"
	"github.com/xkilldash9x/opera-farm/internal/prompt"
)

var errNoCheckInTile = errors.New("no unclaimed check-in day is shown")

// FarmDailyPoints claims today's check-in reward. The claim is signed in the
// wallet, which may first ask to continue on the current network.
func (w *Workflow) FarmDailyPoints(ctx context.Context, run *ProfileRun) (CheckInOutcome, error) {
	d := run.Driver
	if err := w.OpenSidePanel(ctx, run); err != nil {
		return CheckInFailed, err
	}
	if err := w.sleep(ctx, w.cfg.SidePanelSettle); err != nil {
		return CheckInFailed, err
	}

	open, err := present(ctx, run, w.sel.CheckInTile)
	if err != nil {
		return CheckInFailed, err
	}
	if !open {
		return CheckInFailed, errNoCheckInTile
	}
	if err := d.Click(ctx, w.sel.CheckInTile); err != nil {
		return CheckInFailed, err
	}
	if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
		return CheckInFailed, err
	}

	claimed, err := present(ctx, run, w.sel.CheckInCooldown)
	if err != nil {
		return CheckInFailed, err
	}
	if claimed {
		run.Logger.Info("Daily points have been earned earlier. Can not farm it today.")
		return CheckInCooldown, nil
	}

	if err := w.confirmCheckIn(ctx, run); err != nil {
		return CheckInFailed, err
	}
	run.Logger.Info("Daily points are claimed.")
	return CheckInClaimed, nil
}

func (w *Workflow) confirmCheckIn(ctx context.Context, run *ProfileRun) error {
	d := run.Driver
	if err := d.Click(ctx, w.sel.CheckInButton); err != nil {
		return err
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	if err := switchTo(ctx, run, run.WalletTab, "wallet"); err != nil {
		return err
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	if err := d.Click(ctx, w.sel.WalletConfirm); err != nil {
		return err
	}
	if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
		return err
	}

	// Only a single unambiguous warning is dismissed.
	warnings, err := d.Count(ctx, w.sel.WalletNetworkWarning)
	if err != nil {
		return err
	}
	if warnings == 1 {
		if err := d.Click(ctx, w.sel.WalletNetworkWarning); err != nil {
			return err
		}
	}

	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	if err := switchTo(ctx, run, run.SiteTab, "site"); err != nil {
		return err
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}
	return d.Click(ctx, w.sel.CheckInAck)
}

// FarmPromptPoint submits one generated prompt and waits for the answer to
// stream in. It never fails the run: the outcome is in the result.
func (w *Workflow) FarmPromptPoint(ctx context.Context, run *ProfileRun) (result PromptResult) {
	defer func() {
		if r := recover(); r != nil {
			result = PromptResult{Err: fmt.Errorf("panic while sending prompt: %v", r)}
			run.Logger.Error("Prompt submission panicked.", observability.ErrorSummary(result.Err))
		}
	}()

	text, err := w.sendPrompt(ctx, run)
	if err != nil {
		run.Logger.Error("Prompt was not sent.", observability.ErrorSummary(err))
		return PromptResult{Text: text, Err: err}
	}

	wait := w.responseWait()
	if err := w.sleep(ctx, wait); err != nil {
		// The prompt went out; the next step notices the cancellation.
		run.Logger.Debug("Response wait interrupted.", zap.Error(err))
	}
	run.Logger.Info("Prompt is sent.", zap.Duration("response_wait", wait))
	return PromptResult{Sent: true, Text: text}
}

func (w *Workflow) sendPrompt(ctx context.Context, run *ProfileRun) (string, error) {
	d := run.Driver
	if err := d.Navigate(ctx, w.site.BaseURL); err != nil {
		return "", err
	}
	if err := w.sleep(ctx, w.cfg.PageSettle); err != nil {
		return "", err
	}
	if err := d.WaitVisible(ctx, w.sel.PromptInput); err != nil {
		return "", err
	}

	raw, err := w.prompts.Generate(ctx)
	if err != nil {
		return "", fmt.Errorf("generating prompt: %w", err)
	}
	text := prompt.Clean(raw)
	if text == "" {
		return "", prompt.ErrEmptyPrompt
	}

	if err := d.Type(ctx, w.sel.PromptInput, text); err != nil {
		return text, err
	}
	if err := d.Click(ctx, w.sel.PromptSendButton); err != nil {
		return text, err
	}
	return text, nil
}

// EarnedPoints reads the total shown in the side panel. Any failure yields
// an unknown reading rather than zero points.
func (w *Workflow) EarnedPoints(ctx context.Context, run *ProfileRun) (reading PointsReading) {
	defer func() {
		if r := recover(); r != nil {
			reading = UnknownPoints(fmt.Errorf("panic while reading points: %v", r))
			run.Logger.Error("Reading points panicked.", observability.ErrorSummary(reading.Err))
		}
	}()

	value, err := w.readPoints(ctx, run)
	if err != nil {
		run.Logger.Error("Could not read earned points.", observability.ErrorSummary(err))
		return UnknownPoints(err)
	}
	return KnownPoints(value)
}

func (w *Workflow) readPoints(ctx context.Context, run *ProfileRun) (int, error) {
	d := run.Driver
	if err := d.Navigate(ctx, w.site.BaseURL); err != nil {
		return 0, err
	}
	if err := w.OpenSidePanel(ctx, run); err != nil {
		return 0, err
	}
	if err := w.sleep(ctx, w.cfg.PointsSettle); err != nil {
		return 0, err
	}
	text, err := d.Text(ctx, w.sel.PointsValue)
	if err != nil {
		return 0, err
	}
	return parsePoints(text)
}

// parsePoints accepts the panel's number with optional thousands separators.
func parsePoints(text string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, strings.TrimSpace(text))

	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("points label %q is not a number", text)
	}
	return n, nil
}

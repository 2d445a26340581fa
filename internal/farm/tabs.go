// internal/farm/tabs.go
package farm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// CloseRelatedTabs closes every tab whose title contains one of the related
// tab markers (case-insensitive) and focuses the first remaining tab. Having
// nothing left to focus is not an error.
func (w *Workflow) CloseRelatedTabs(ctx context.Context, run *ProfileRun) error {
	d := run.Driver
	tabs, err := d.Tabs(ctx)
	if err != nil {
		return fmt.Errorf("listing tabs: %w", err)
	}

	var errs []error
	closed := 0
	for _, tab := range tabs {
		if !w.related(tab.Title) {
			continue
		}
		if err := d.CloseTab(ctx, tab.Handle); err != nil {
			errs = append(errs, err)
			continue
		}
		closed++
		switch tab.Handle {
		case run.SiteTab:
			run.SiteTab = ""
		case run.WalletTab:
			run.WalletTab = ""
		}
	}

	remaining, err := d.Tabs(ctx)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("listing tabs: %w", err))...)
	}
	if len(remaining) == 0 {
		run.Logger.Info("All tabs were closed; no remaining tab to switch to.", zap.Int("closed", closed))
		return errors.Join(errs...)
	}
	if err := d.SwitchTo(ctx, remaining[0].Handle); err != nil {
		errs = append(errs, fmt.Errorf("focusing remaining tab: %w", err))
	}
	run.Logger.Debug("Related tabs closed.", zap.Int("closed", closed), zap.Int("remaining", len(remaining)))
	return errors.Join(errs...)
}

func (w *Workflow) related(title string) bool {
	title = strings.ToUpper(title)
	for _, marker := range w.cfg.RelatedTabMarkers {
		if marker != "" && strings.Contains(title, strings.ToUpper(marker)) {
			return true
		}
	}
	return false
}

// internal/farm/signin.go
package farm

import (
	"context"

	"go.uber.org/zap"
)

// SignIn performs one sign-in pass. When the site shows its login button it
// runs the connect handshake with the wallet (up to connect_attempts times,
// stopping once the wallet shows Confirm), then reloads the landing page and
// claims the referral code when one is configured.
func (w *Workflow) SignIn(ctx context.Context, run *ProfileRun) error {
	if err := switchTo(ctx, run, run.SiteTab, "site"); err != nil {
		return err
	}
	if err := w.sleep(ctx, w.cfg.SignInSettle); err != nil {
		return err
	}
	loggedOut, err := present(ctx, run, w.sel.LoginButton)
	if err != nil {
		return err
	}
	if !loggedOut {
		run.Logger.Debug("Already signed in.")
		return nil
	}

	for attempt := 1; attempt <= w.cfg.ConnectAttempts; attempt++ {
		confirmed, err := w.connectWallet(ctx, run)
		if err != nil {
			return err
		}
		if confirmed {
			break
		}
		run.Logger.Debug("Wallet did not ask for confirmation.", zap.Int("attempt", attempt))
		if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
			return err
		}
	}

	if err := w.sleep(ctx, w.cfg.StepDelay); err != nil {
		return err
	}
	if err := switchTo(ctx, run, run.SiteTab, "site"); err != nil {
		return err
	}
	if err := w.claimReferral(ctx, run); err != nil {
		return err
	}
	run.Logger.Info("Sign in has been performed.")
	return nil
}

// connectWallet picks the wallet on the site's login dialog and approves the
// connection in the extension. It reports whether Confirm was clicked.
func (w *Workflow) connectWallet(ctx context.Context, run *ProfileRun) (bool, error) {
	d := run.Driver
	steps := []func() error{
		func() error { return w.sleep(ctx, w.cfg.StepDelay) },
		func() error { return switchTo(ctx, run, run.SiteTab, "site") },
		func() error { return w.sleep(ctx, w.cfg.StepDelay) },
		func() error { return d.Click(ctx, w.sel.LoginWallet) },
		func() error { return w.sleep(ctx, w.cfg.StepDelay) },
		func() error { return switchTo(ctx, run, run.WalletTab, "wallet") },
		func() error { return w.sleep(ctx, w.cfg.StepDelay) },
		// Cancel is shown on every approval screen once it has rendered.
		func() error { return d.WaitVisible(ctx, w.sel.WalletCancel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return false, err
		}
	}

	if ok, err := present(ctx, run, w.sel.WalletConnect); err != nil {
		return false, err
	} else if ok {
		if err := d.Click(ctx, w.sel.WalletConnect); err != nil {
			return false, err
		}
	}

	ok, err := present(ctx, run, w.sel.WalletConfirm)
	if err != nil || !ok {
		return false, err
	}
	if err := d.Click(ctx, w.sel.WalletConfirm); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Workflow) claimReferral(ctx context.Context, run *ProfileRun) error {
	d := run.Driver
	if err := d.Navigate(ctx, w.site.LandingURL()); err != nil {
		return err
	}
	if err := d.WaitVisible(ctx, w.sel.PageReady); err != nil {
		return err
	}
	if w.site.ReferralCode == "" {
		run.Logger.Info("No referral code configured; skipping the referral claim.")
		return nil
	}
	if err := w.sleep(ctx, w.cfg.ShortDelay); err != nil {
		return err
	}

	claimable, err := present(ctx, run, w.sel.ReferralConfirm)
	if err != nil || !claimable {
		return err
	}
	if err := d.Click(ctx, w.sel.ReferralConfirm); err != nil {
		return err
	}
	if err := d.WaitVisible(ctx, w.sel.PageReady); err != nil {
		return err
	}
	run.Logger.Info("Referral code has been entered.", zap.String("code", w.site.ReferralCode))
	return nil
}

// signInUntilDone repeats SignIn while the login button is still shown, up
// to sign_in_attempts passes. A button that survives every pass is only
// logged.
func (w *Workflow) signInUntilDone(ctx context.Context, run *ProfileRun) error {
	for attempt := 1; ; attempt++ {
		if err := w.SignIn(ctx, run); err != nil {
			return err
		}
		loggedOut, err := present(ctx, run, w.sel.LoginButton)
		if err != nil {
			return err
		}
		if !loggedOut {
			return nil
		}
		if attempt >= w.cfg.SignInAttempts {
			run.Logger.Warn("Login button still present after sign in.", zap.Int("attempts", attempt))
			return nil
		}
	}
}

// OpenSidePanel makes the points panel visible, toggling it open when it is
// collapsed.
func (w *Workflow) OpenSidePanel(ctx context.Context, run *ProfileRun) error {
	d := run.Driver
	if err := d.WaitVisible(ctx, w.sel.PageReady); err != nil {
		return err
	}
	shown, err := present(ctx, run, w.sel.SidePanelMarker)
	if err != nil {
		return err
	}
	if !shown {
		if err := d.Click(ctx, w.sel.SidePanelToggle); err != nil {
			return err
		}
	}
	return d.WaitVisible(ctx, w.sel.SidePanelMarker)
}

// internal/farm/wallet.go
package farm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/browser"
)

// walletPrefixLen is how many leading characters identify an account. The
// extension shows the name truncated, so only the prefix is comparable.
const walletPrefixLen = 6

// OpenWallet opens the wallet extension in a new tab and unlocks it.
func (w *Workflow) OpenWallet(ctx context.Context, run *ProfileRun) (browser.Tab, error) {
	d := run.Driver
	tab, err := d.NewTab(ctx)
	if err != nil {
		return "", fmt.Errorf("opening wallet tab: %w", err)
	}
	if err := d.Navigate(ctx, w.wallet.UnlockURL()); err != nil {
		return "", err
	}
	if err := d.Type(ctx, w.sel.WalletPasswordInput, w.wallet.Password); err != nil {
		return "", err
	}
	if err := d.Click(ctx, w.sel.WalletUnlockButton); err != nil {
		return "", err
	}

	run.WalletTab = tab
	run.Logger.Debug("Wallet unlocked.", zap.String("tab", string(tab)))
	return tab, nil
}

// SelectWallet makes sure the wallet's active account is the profile's. When
// the active account differs it opens the account list and picks the first
// entry. It reports whether the account was switched.
func (w *Workflow) SelectWallet(ctx context.Context, run *ProfileRun) (bool, error) {
	d := run.Driver
	if err := switchTo(ctx, run, run.WalletTab, "wallet"); err != nil {
		return false, err
	}

	current, err := d.Text(ctx, w.sel.WalletAccountName)
	if err != nil {
		return false, err
	}
	if sameAccount(current, run.Profile.WalletAddress()) {
		run.Logger.Info("No need to change wallet.")
		return false, nil
	}

	if err := d.Click(ctx, w.sel.WalletAccountName); err != nil {
		return false, err
	}
	if err := d.WaitVisible(ctx, w.sel.WalletAccountEntry); err != nil {
		return false, err
	}
	if err := d.Click(ctx, w.sel.WalletAccountEntry); err != nil {
		return false, err
	}
	run.Logger.Info("Successfully changed the wallet.", zap.String("previous", current))
	return true, nil
}

// sameAccount compares the first walletPrefixLen characters, ignoring case.
func sameAccount(current, target string) bool {
	return strings.EqualFold(prefix(strings.TrimSpace(current), walletPrefixLen), prefix(strings.TrimSpace(target), walletPrefixLen))
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// File: internal/config/selectors.go
// This file defines every XPath the farming workflow uses. They are pinned to
// the current chat UI and wallet extension versions; a UI release that
// renames a control needs an update here (or in config.yaml), nowhere else.
//
// Controls without a stable attribute are addressed by structured traversal
// from a stable anchor (parent, nth child, last button) rather than by
// editing the text of an absolute element path.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SelectorsConfig holds the XPath expressions for the site and wallet pages.
type SelectorsConfig struct {
	// Wallet extension.
	WalletPasswordInput  string `mapstructure:"wallet_password_input" yaml:"wallet_password_input"`
	WalletUnlockButton   string `mapstructure:"wallet_unlock_button" yaml:"wallet_unlock_button"`
	WalletAccountName    string `mapstructure:"wallet_account_name" yaml:"wallet_account_name"`
	WalletAccountEntry   string `mapstructure:"wallet_account_entry" yaml:"wallet_account_entry"`
	WalletCancel         string `mapstructure:"wallet_cancel" yaml:"wallet_cancel"`
	WalletConnect        string `mapstructure:"wallet_connect" yaml:"wallet_connect"`
	WalletConfirm        string `mapstructure:"wallet_confirm" yaml:"wallet_confirm"`
	WalletNetworkWarning string `mapstructure:"wallet_network_warning" yaml:"wallet_network_warning"`

	// Chat site.
	PageBody         string `mapstructure:"page_body" yaml:"page_body"`
	PageReady        string `mapstructure:"page_ready" yaml:"page_ready"`
	LoginButton      string `mapstructure:"login_button" yaml:"login_button"`
	LoginWallet      string `mapstructure:"login_wallet" yaml:"login_wallet"`
	ReferralConfirm  string `mapstructure:"referral_confirm" yaml:"referral_confirm"`
	SidePanelMarker  string `mapstructure:"side_panel_marker" yaml:"side_panel_marker"`
	SidePanelToggle  string `mapstructure:"side_panel_toggle" yaml:"side_panel_toggle"`
	PointsValue      string `mapstructure:"points_value" yaml:"points_value"`
	CheckInTile      string `mapstructure:"check_in_tile" yaml:"check_in_tile"`
	CheckInCooldown  string `mapstructure:"check_in_cooldown" yaml:"check_in_cooldown"`
	CheckInButton    string `mapstructure:"check_in_button" yaml:"check_in_button"`
	CheckInAck       string `mapstructure:"check_in_ack" yaml:"check_in_ack"`
	PromptInput      string `mapstructure:"prompt_input" yaml:"prompt_input"`
	PromptSendButton string `mapstructure:"prompt_send_button" yaml:"prompt_send_button"`
}

func setSelectorDefaults(v *viper.Viper) {
	v.SetDefault("selectors.wallet_password_input", `//input[@data-testid='okd-input']`)
	v.SetDefault("selectors.wallet_unlock_button", `//button[@data-testid='okd-button']`)
	v.SetDefault("selectors.wallet_account_name", `//div[@data-testid='home-page-wallet-account-name']`)
	v.SetDefault("selectors.wallet_account_entry", `//div[@data-testid='wallet-management-page-wallet-account-detail']`)
	v.SetDefault("selectors.wallet_cancel", `//div[text()='Cancel' or text()='Скасувати']`)
	v.SetDefault("selectors.wallet_connect", `//div[text()='Connect' or text()='Підключити']`)
	v.SetDefault("selectors.wallet_confirm", `//div[text()='Confirm' or text()='Підтвердити']`)
	v.SetDefault("selectors.wallet_network_warning", `//div[text()='Continue on this network' or text()='Продовжити в цій мережі']`)

	v.SetDefault("selectors.page_body", `//body`)
	// Empty defaults are anchored on site.social_link by applySiteAnchors.
	v.SetDefault("selectors.page_ready", "")
	v.SetDefault("selectors.login_button", `//button[text()='Login']`)
	v.SetDefault("selectors.login_wallet", `//span[text()='OKX Wallet']`)
	v.SetDefault("selectors.referral_confirm", `//button[text()='Confirm']`)
	v.SetDefault("selectors.side_panel_marker", `//span[text()='Total Points Earned']`)
	v.SetDefault("selectors.side_panel_toggle", "")
	// The total sits in the third div of the block holding the marker label.
	v.SetDefault("selectors.points_value", `(//span[text()='Total Points Earned']/../../div[3]//span)[1]`)
	v.SetDefault("selectors.check_in_tile", `(//div[@data-signed='false'])[1]`)
	v.SetDefault("selectors.check_in_cooldown", `//div[text()='Thank you! You have already checked-in today!']`)
	v.SetDefault("selectors.check_in_button", `//button[text()='Check-In']`)
	v.SetDefault("selectors.check_in_ack", `//button[text()='Got it!']`)
	v.SetDefault("selectors.prompt_input", `//textarea[@placeholder='Ask AI anything...']`)
	// Send is the last button inside the textarea's container.
	v.SetDefault("selectors.prompt_send_button", `(//textarea[@placeholder='Ask AI anything...']/..//button)[last()]`)
}

// applySiteAnchors fills the selectors anchored on the site's social link
// unless they were set explicitly. The link is rendered once the chat page
// is interactive, and the side panel toggle is the button next to it.
func (s *SelectorsConfig) applySiteAnchors(site SiteConfig) {
	link := strings.TrimSpace(site.SocialLink)
	if link == "" {
		return
	}
	anchor := fmt.Sprintf("//a[@href=%s]", xpathLiteral(link))
	if s.PageReady == "" {
		s.PageReady = anchor
	}
	if s.SidePanelToggle == "" {
		s.SidePanelToggle = "(" + anchor + "/../button)[1]"
	}
}

// xpathLiteral quotes v as an XPath 1.0 string literal.
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

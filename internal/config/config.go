// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Site      SiteConfig      `mapstructure:"site" yaml:"site"`
	Wallet    WalletConfig    `mapstructure:"wallet" yaml:"wallet"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
	Prompt    PromptConfig    `mapstructure:"prompt" yaml:"prompt"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser instances backing each profile.
type BrowserConfig struct {
	ChromePath     string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ProfilesRoot   string        `mapstructure:"profiles_root" yaml:"profiles_root"`
	ExtensionPaths []string      `mapstructure:"extension_paths" yaml:"extension_paths"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// SiteConfig describes the chat application endpoints.
type SiteConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	ReferralCode string `mapstructure:"referral_code" yaml:"referral_code"`
	SocialLink   string `mapstructure:"social_link" yaml:"social_link"`
}

// LandingURL is the page a profile lands on after opening. It carries the
// referral code when one is configured.
func (s SiteConfig) LandingURL() string {
	if s.ReferralCode == "" {
		return s.BaseURL
	}
	return strings.TrimRight(s.BaseURL, "/") + "/invite?code=" + url.QueryEscape(s.ReferralCode)
}

// WalletConfig describes the wallet browser extension.
type WalletConfig struct {
	ExtensionID string `mapstructure:"extension_id" yaml:"extension_id"`
	UnlockPath  string `mapstructure:"unlock_path" yaml:"unlock_path"`
	Password    string `mapstructure:"password" yaml:"-"`
}

// UnlockURL is the extension-internal page holding the password prompt.
func (w WalletConfig) UnlockURL() string {
	return fmt.Sprintf("chrome-extension://%s/%s", w.ExtensionID, strings.TrimLeft(w.UnlockPath, "/"))
}

// WorkflowConfig tunes the fixed delays and attempt counts of a farming run.
type WorkflowConfig struct {
	Stagger           time.Duration `mapstructure:"stagger" yaml:"stagger"`
	ShortDelay        time.Duration `mapstructure:"short_delay" yaml:"short_delay"`
	StepDelay         time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	SignInSettle      time.Duration `mapstructure:"sign_in_settle" yaml:"sign_in_settle"`
	PageSettle        time.Duration `mapstructure:"page_settle" yaml:"page_settle"`
	SidePanelSettle   time.Duration `mapstructure:"side_panel_settle" yaml:"side_panel_settle"`
	PointsSettle      time.Duration `mapstructure:"points_settle" yaml:"points_settle"`
	ResponseWaitMin   time.Duration `mapstructure:"response_wait_min" yaml:"response_wait_min"`
	ResponseWaitMax   time.Duration `mapstructure:"response_wait_max" yaml:"response_wait_max"`
	PromptsMin        int           `mapstructure:"prompts_min" yaml:"prompts_min"`
	PromptsMax        int           `mapstructure:"prompts_max" yaml:"prompts_max"`
	SignInAttempts    int           `mapstructure:"sign_in_attempts" yaml:"sign_in_attempts"`
	ConnectAttempts   int           `mapstructure:"connect_attempts" yaml:"connect_attempts"`
	RelatedTabMarkers []string      `mapstructure:"related_tab_markers" yaml:"related_tab_markers"`
	FinalizeTimeout   time.Duration `mapstructure:"finalize_timeout" yaml:"finalize_timeout"`
}

// RunnerConfig configures how many profiles are farmed and from where.
type RunnerConfig struct {
	Concurrency  int    `mapstructure:"concurrency" yaml:"concurrency"`
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file"`
}

// PromptProvider names a prompt generator backend.
type PromptProvider string

const (
	ProviderStatic PromptProvider = "static"
	ProviderGemini PromptProvider = "gemini"
)

// PromptConfig selects and tunes the prompt generator.
type PromptConfig struct {
	Provider    PromptProvider `mapstructure:"provider" yaml:"provider"`
	Model       string         `mapstructure:"model" yaml:"model"`
	APIKey      string         `mapstructure:"api_key" yaml:"-"`
	Temperature float32        `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerMinute caps generator calls shared by all concurrent
	// profiles. Zero disables the limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// DatabaseConfig holds the run ledger connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.Selectors.applySiteAnchors(cfg.Site)
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "opera-farm")
	v.SetDefault("logger.log_file", "opera-farm.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	// Extensions need a headed browser.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.profiles_root", "~/.opera-farm/profiles")
	v.SetDefault("browser.wait_timeout", "30s")
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Site --
	v.SetDefault("site.base_url", "https://chat.chainopera.ai/")
	v.SetDefault("site.referral_code", "")
	v.SetDefault("site.social_link", "https://x.com/ChainOpera_AI")

	// -- Wallet --
	v.SetDefault("wallet.extension_id", "mcohilncbfahbmgdjkbpemcciiolgcge")
	v.SetDefault("wallet.unlock_path", "popup.html#/unlock")
	v.SetDefault("wallet.password", "")

	// -- Workflow --
	v.SetDefault("workflow.stagger", "1s")
	v.SetDefault("workflow.short_delay", "1s")
	v.SetDefault("workflow.step_delay", "2s")
	v.SetDefault("workflow.sign_in_settle", "3s")
	v.SetDefault("workflow.page_settle", "10s")
	v.SetDefault("workflow.side_panel_settle", "3s")
	v.SetDefault("workflow.points_settle", "5s")
	v.SetDefault("workflow.response_wait_min", "51s")
	v.SetDefault("workflow.response_wait_max", "70s")
	v.SetDefault("workflow.prompts_min", 6)
	v.SetDefault("workflow.prompts_max", 8)
	v.SetDefault("workflow.sign_in_attempts", 2)
	v.SetDefault("workflow.connect_attempts", 2)
	v.SetDefault("workflow.related_tab_markers", []string{"OKX", "ChainOpera"})
	v.SetDefault("workflow.finalize_timeout", "30s")

	// -- Selectors --
	setSelectorDefaults(v)

	// -- Runner --
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.profiles_file", "profiles.yaml")

	// -- Prompt --
	v.SetDefault("prompt.provider", string(ProviderStatic))
	v.SetDefault("prompt.model", "gemini-2.5-flash")
	v.SetDefault("prompt.api_key", "")
	v.SetDefault("prompt.temperature", 0.9)
	v.SetDefault("prompt.timeout", "30s")
	v.SetDefault("prompt.requests_per_minute", 10)

	// -- Database --
	v.SetDefault("database.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object
// and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Unmarshal decodes v without validating. Commands that never touch a
// browser, such as reporting, use it so they run without wallet secrets.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets only ever come from the environment. The unprefixed names match
	// the .env files the original tooling used.
	_ = v.BindEnv("wallet.password", "OPERA_WALLET_PASSWORD", "PASSWORD")
	_ = v.BindEnv("prompt.api_key", "OPERA_PROMPT_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "OPERA_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Selectors.applySiteAnchors(cfg.Site)
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Wallet.Password == "" {
		return fmt.Errorf("wallet.password is required (set OPERA_WALLET_PASSWORD or PASSWORD)")
	}
	if c.Wallet.ExtensionID == "" {
		return fmt.Errorf("wallet.extension_id is a required configuration field")
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute URL, got %q", c.Site.BaseURL)
	}
	if c.Selectors.PageReady == "" || c.Selectors.SidePanelToggle == "" {
		return fmt.Errorf("site.social_link is required unless selectors.page_ready and selectors.side_panel_toggle are set")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if err := c.Workflow.Validate(); err != nil {
		return fmt.Errorf("workflow configuration invalid: %w", err)
	}
	if err := c.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the WorkflowConfig settings.
func (w *WorkflowConfig) Validate() error {
	if w.PromptsMin < 0 {
		return fmt.Errorf("prompts_min must not be negative")
	}
	if w.PromptsMin > w.PromptsMax {
		return fmt.Errorf("prompts_min (%d) must not exceed prompts_max (%d)", w.PromptsMin, w.PromptsMax)
	}
	if w.SignInAttempts < 1 {
		return fmt.Errorf("sign_in_attempts must be at least 1")
	}
	if w.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1")
	}
	if w.ResponseWaitMin < 0 || w.ResponseWaitMin > w.ResponseWaitMax {
		return fmt.Errorf("response_wait_min must be between 0 and response_wait_max")
	}
	return nil
}

// Validate checks the PromptConfig settings.
func (p *PromptConfig) Validate() error {
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	switch p.Provider {
	case ProviderStatic:
		return nil
	case ProviderGemini:
		if p.APIKey == "" {
			return fmt.Errorf("api_key is required for the gemini provider (set OPERA_PROMPT_API_KEY or GEMINI_API_KEY)")
		}
		if p.Model == "" {
			return fmt.Errorf("model is required for the gemini provider")
		}
		return nil
	default:
		return fmt.Errorf("unknown provider %q. Supported: [%s, %s]", p.Provider, ProviderStatic, ProviderGemini)
	}
}

// internal/profile/launcher.go
package profile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/browser"
	"github.com/xkilldash9x/opera-farm/internal/config"
)

// Launcher turns profile specs into handles backed by chromedp browsers.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLauncher creates a launcher for the given browser settings.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("profile")}
}

// Handle returns an unopened handle for spec.
func (l *Launcher) Handle(spec Spec) *Handle {
	return &Handle{spec: spec, launcher: l}
}

// Handles is Handle over a list.
func (l *Launcher) Handles(specs []Spec) []*Handle {
	out := make([]*Handle, len(specs))
	for i, s := range specs {
		out[i] = l.Handle(s)
	}
	return out
}

// UserDataDir resolves where a locally launched profile keeps its state.
func (l *Launcher) UserDataDir(spec Spec) (string, error) {
	dir := spec.UserDataDir
	if dir == "" {
		dir = filepath.Join(l.cfg.ProfilesRoot, spec.ID)
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand user data dir %q: %w", dir, err)
	}
	return expanded, nil
}

// execFlags builds the command line switches for a local browser. Values are
// either bool (present or not) or string (key=value).
func execFlags(cfg config.BrowserConfig, userDataDir string) map[string]interface{} {
	flags := map[string]interface{}{
		"no-first-run":             true,
		"no-default-browser-check": true,
		"user-data-dir":            userDataDir,
		// Extension popups are opened in background tabs.
		"disable-background-timer-throttling": true,
		"disable-renderer-backgrounding":      true,
	}
	if cfg.Headless {
		flags["headless"] = "new"
	}
	if len(cfg.ExtensionPaths) > 0 {
		paths := strings.Join(cfg.ExtensionPaths, ",")
		flags["load-extension"] = paths
		flags["disable-extensions-except"] = paths
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			flags[key] = value
		} else if arg != "" {
			flags[arg] = true
		}
	}
	return flags
}

func (l *Launcher) execOptions(userDataDir string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for key, value := range execFlags(l.cfg, userDataDir) {
		opts = append(opts, chromedp.Flag(key, value))
	}
	if l.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ChromePath))
	}
	return opts
}

// Handle is one profile's browser lifecycle. It satisfies farm.Profile.
type Handle struct {
	spec     Spec
	launcher *Launcher

	mu          sync.Mutex
	session     *browser.Session
	allocCancel context.CancelFunc
}

// ID is the profile identifier used in logs and reports.
func (h *Handle) ID() string { return h.spec.ID }

// WalletAddress is the account the wallet should have selected.
func (h *Handle) WalletAddress() string { return h.spec.WalletAddress }

// Open launches (or attaches to) the profile's browser. The browser outlives
// ctx; it is released by Close.
func (h *Handle) Open(ctx context.Context) (browser.Driver, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session != nil {
		return h.session, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := h.launcher
	logger := l.logger.With(zap.String("profile_id", h.spec.ID))

	// The allocator is rooted in a detached context: a canceled run must
	// still be able to clean up through Close.
	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if h.spec.Remote() {
		logger.Info("Attaching to running profile.", zap.String("debugger_url", h.spec.DebuggerURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(browser.Detach(ctx), h.spec.DebuggerURL)
	} else {
		dir, err := l.UserDataDir(h.spec)
		if err != nil {
			return nil, err
		}
		logger.Info("Launching profile.", zap.String("user_data_dir", dir))
		allocCtx, allocCancel = chromedp.NewExecAllocator(browser.Detach(ctx), l.execOptions(dir)...)
	}

	session, err := browser.NewSession(allocCtx, logger, browser.Options{
		WaitTimeout:   l.cfg.WaitTimeout,
		LaunchTimeout: l.cfg.LaunchTimeout,
	})
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("failed to open profile %s: %w", h.spec.ID, err)
	}

	h.session = session
	h.allocCancel = allocCancel
	return session, nil
}

// Close shuts the profile's browser down. Closing an unopened handle is a
// no-op so cleanup paths can call it unconditionally.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil
	}

	done := make(chan error, 1)
	session := h.session
	go func() { done <- session.Close() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("closing profile %s: %w", h.spec.ID, ctx.Err())
	}
	h.allocCancel()
	h.session = nil
	h.allocCancel = nil
	return err
}

// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultWaitTimeout   = 30 * time.Second
	defaultLaunchTimeout = 60 * time.Second
)

// Options tunes a Session.
type Options struct {
	// WaitTimeout bounds every element wait and navigation.
	WaitTimeout time.Duration
	// LaunchTimeout bounds starting (or attaching to) the browser.
	LaunchTimeout time.Duration
}

// Session drives one browser through chromedp. Every tab gets its own
// chromedp context; the first one also owns the browser connection.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
	opts          Options

	mu      sync.Mutex
	tabs    map[Tab]*tabContext
	current Tab
	closed  bool
}

type tabContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	// owner marks the context that holds the browser; canceling it would
	// end the whole session.
	owner bool
}

var _ Driver = (*Session)(nil)

// NewSession starts the browser behind allocCtx (an exec or remote
// allocator context) and focuses its first tab.
func NewSession(allocCtx context.Context, logger *zap.Logger, opts Options) (*Session, error) {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = defaultLaunchTimeout
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and is bound to the context it is
	// given, so it cannot carry a timeout itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-time.After(opts.LaunchTimeout):
		cancel()
		return nil, fmt.Errorf("browser did not start within %v", opts.LaunchTimeout)
	}

	first := Tab(chromedp.FromContext(browserCtx).Target.TargetID)
	s := &Session{
		browserCtx:    browserCtx,
		browserCancel: cancel,
		logger:        logger.Named("browser"),
		opts:          opts,
		tabs:          map[Tab]*tabContext{first: {ctx: browserCtx, cancel: func() {}, owner: true}},
		current:       first,
	}
	s.logger.Debug("Browser session started.", zap.String("tab", string(first)))
	return s, nil
}

// NewTab opens a blank tab and focuses it.
func (s *Session) NewTab(ctx context.Context) (Tab, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return "", fmt.Errorf("failed to open tab: %w", err)
	}
	tab := Tab(chromedp.FromContext(tabCtx).Target.TargetID)

	s.mu.Lock()
	s.tabs[tab] = &tabContext{ctx: tabCtx, cancel: cancel}
	s.current = tab
	s.mu.Unlock()

	return tab, s.bringToFront(ctx, tab)
}

// SwitchTo focuses an existing tab, attaching to it if this session did not
// open it.
func (s *Session) SwitchTo(ctx context.Context, tab Tab) error {
	if _, err := s.attach(tab); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = tab
	s.mu.Unlock()
	return s.bringToFront(ctx, tab)
}

// Current returns the focused tab.
func (s *Session) Current() Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Tabs lists the open page targets.
func (s *Session) Tabs(ctx context.Context) ([]TabInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	opCtx, cancel := CombineContext(s.browserCtx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(opCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	tabs := make([]TabInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, TabInfo{Handle: Tab(info.TargetID), Title: info.Title, URL: info.URL})
	}
	return tabs, nil
}

// CloseTab closes a tab and forgets its context.
func (s *Session) CloseTab(ctx context.Context, tab Tab) error {
	tc, err := s.attach(tab)
	if err != nil {
		return err
	}
	opCtx, cancel := CombineContext(tc.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(opCtx, page.Close()); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", tab, err)
	}
	if !tc.owner {
		tc.cancel()
	}

	s.mu.Lock()
	delete(s.tabs, tab)
	if s.current == tab {
		s.current = ""
	}
	s.mu.Unlock()
	return nil
}

// Navigate loads url in the focused tab and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until selector matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.BySearch)); err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return nil
}

// Count returns the number of elements currently matching selector.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return 0, fmt.Errorf("querying %s: %w", selector, err)
	}
	return len(nodes), nil
}

// Click clicks the first visible element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	return nil
}

// Type focuses the element and types text into it.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	if err := s.run(ctx, chromedp.SendKeys(selector, text, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("typing into %s: %w", selector, err)
	}
	return nil
}

// Text returns the visible text of the element.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Text(selector, &text, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("reading %s: %w", selector, err)
	}
	return text, nil
}

// Close ends the session. For a locally launched browser this terminates the
// process; for a remote one it drops the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.tabs = map[Tab]*tabContext{}
	s.current = ""
	s.mu.Unlock()

	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser session: %w", err)
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("browser: session is closed")
	}
	return nil
}

// attach returns the context for tab, attaching to the target when the tab
// was opened by someone else (an extension popup, a previous run).
func (s *Session) attach(tab Tab) (*tabContext, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if tab == "" {
		return nil, ErrNoTab
	}

	s.mu.Lock()
	tc, ok := s.tabs[tab]
	s.mu.Unlock()
	if ok {
		return tc, nil
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx, chromedp.WithTargetID(target.ID(tab)))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to tab %s: %w", tab, err)
	}
	tc = &tabContext{ctx: tabCtx, cancel: cancel}

	s.mu.Lock()
	s.tabs[tab] = tc
	s.mu.Unlock()
	return tc, nil
}

func (s *Session) bringToFront(ctx context.Context, tab Tab) error {
	tc, err := s.attach(tab)
	if err != nil {
		return err
	}
	opCtx, cancel := CombineContext(tc.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, page.BringToFront()); err != nil {
		return fmt.Errorf("failed to focus tab %s: %w", tab, err)
	}
	return nil
}

// run executes actions in the focused tab, bounded by both ctx and the wait timeout.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tc, err := s.attach(s.Current())
	if err != nil {
		return err
	}
	opCtx, cancel := CombineContext(tc.ctx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, s.opts.WaitTimeout)
	defer cancelTimeout()

	return chromedp.Run(opCtx, actions...)
}

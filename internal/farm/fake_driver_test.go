// internal/farm/fake_driver_test.go
package farm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/opera-farm/internal/browser"
)

// fakeDriver is an in-memory browser. Elements are global to the browser
// rather than per tab, which is enough for the workflow's choreography.
type fakeDriver struct {
	mu sync.Mutex

	tabs    []browser.TabInfo
	current browser.Tab
	nextID  int

	elements map[string]int
	texts    map[string]string
	failOn   map[string]error
	panicOn  map[string]bool
	onClick  map[string]func(d *fakeDriver)

	calls []string
}

func newFakeDriver(titles ...string) *fakeDriver {
	d := &fakeDriver{
		elements: map[string]int{},
		texts:    map[string]string{},
		failOn:   map[string]error{},
		panicOn:  map[string]bool{},
		onClick:  map[string]func(d *fakeDriver){},
	}
	for _, title := range titles {
		d.addTab(title, "https://example.test/"+strings.ToLower(strings.ReplaceAll(title, " ", "-")))
	}
	if len(d.tabs) > 0 {
		d.current = d.tabs[0].Handle
	}
	return d
}

func (d *fakeDriver) addTab(title, url string) browser.Tab {
	d.nextID++
	tab := browser.Tab(fmt.Sprintf("tab-%d", d.nextID))
	d.tabs = append(d.tabs, browser.TabInfo{Handle: tab, Title: title, URL: url})
	return tab
}

// show makes selectors present (count 1).
func (d *fakeDriver) show(selectors ...string) *fakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range selectors {
		d.elements[s] = 1
	}
	return d
}

func (d *fakeDriver) hide(selectors ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range selectors {
		delete(d.elements, s)
	}
}

func (d *fakeDriver) setText(selector, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[selector] = 1
	d.texts[selector] = text
}

func (d *fakeDriver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded operations.
func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// count reports how many recorded calls equal call.
func (d *fakeDriver) count(call string) int {
	n := 0
	for _, c := range d.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (d *fakeDriver) check(selector string) error {
	if d.panicOn[selector] {
		panic("driver exploded on " + selector)
	}
	if err := d.failOn[selector]; err != nil {
		return err
	}
	if d.elements[selector] == 0 {
		return fmt.Errorf("waiting for %s: %w", selector, context.DeadlineExceeded)
	}
	return nil
}

func (d *fakeDriver) NewTab(ctx context.Context) (browser.Tab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tab := d.addTab("New Tab", "about:blank")
	d.current = tab
	d.record("newtab:%s", tab)
	return tab, nil
}

func (d *fakeDriver) SwitchTo(ctx context.Context, tab browser.Tab) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index(tab) < 0 {
		return fmt.Errorf("switch to %s: %w", tab, browser.ErrNoTab)
	}
	d.current = tab
	d.record("switch:%s", tab)
	return nil
}

func (d *fakeDriver) Current() browser.Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *fakeDriver) Tabs(ctx context.Context) ([]browser.TabInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.TabInfo(nil), d.tabs...), nil
}

func (d *fakeDriver) CloseTab(ctx context.Context, tab browser.Tab) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(tab)
	if i < 0 {
		return browser.ErrNoTab
	}
	d.tabs = append(d.tabs[:i], d.tabs[i+1:]...)
	if d.current == tab {
		d.current = ""
	}
	d.record("close:%s", tab)
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failOn["navigate"]; err != nil {
		return err
	}
	i := d.index(d.current)
	if i < 0 {
		return browser.ErrNoTab
	}
	d.tabs[i].URL = url
	switch {
	case strings.HasPrefix(url, "chrome-extension://"):
		d.tabs[i].Title = "OKX Wallet"
	case strings.Contains(url, "chainopera"):
		d.tabs[i].Title = "ChainOpera AI"
	default:
		d.tabs[i].Title = url
	}
	d.record("navigate:%s", url)
	return nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.check(selector)
}

func (d *fakeDriver) Count(ctx context.Context, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panicOn[selector] {
		panic("driver exploded on " + selector)
	}
	return d.elements[selector], nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	d.mu.Lock()
	if err := d.check(selector); err != nil {
		d.mu.Unlock()
		return err
	}
	d.record("click:%s", selector)
	hook := d.onClick[selector]
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *fakeDriver) Type(ctx context.Context, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(selector); err != nil {
		return err
	}
	d.record("type:%s:%s", selector, text)
	return nil
}

func (d *fakeDriver) Text(ctx context.Context, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(selector); err != nil {
		return "", err
	}
	return d.texts[selector], nil
}

func (d *fakeDriver) index(tab browser.Tab) int {
	for i, t := range d.tabs {
		if t.Handle == tab {
			return i
		}
	}
	return -1
}

var _ browser.Driver = (*fakeDriver)(nil)

// fakeProfile hands out a fakeDriver and counts lifecycle calls.
type fakeProfile struct {
	id       string
	wallet   string
	driver   *fakeDriver
	openErr  error
	closeErr error

	mu     sync.Mutex
	opens  int
	closes int
}

func (p *fakeProfile) ID() string            { return p.id }
func (p *fakeProfile) WalletAddress() string { return p.wallet }

func (p *fakeProfile) Open(ctx context.Context) (browser.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.driver, nil
}

func (p *fakeProfile) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return p.closeErr
}

func (p *fakeProfile) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// recordingSleeper never blocks; it keeps the requested durations.
type recordingSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// fixedPrompts returns the same text, or an error, on every call.
type fixedPrompts struct {
	text string
	err  error

	mu    sync.Mutex
	calls int
}

func (f *fixedPrompts) Generate(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

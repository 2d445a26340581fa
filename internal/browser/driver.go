// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
)

// ErrNoTab is returned when an operation needs a focused tab and none is.
var ErrNoTab = errors.New("browser: no tab is focused")

// Tab is an opaque handle to one browser tab. Handles are only valid for the
// lifetime of the Driver that produced them.
type Tab string

// TabInfo describes an open tab.
type TabInfo struct {
	Handle Tab
	Title  string
	URL    string
}

// Driver is the contract the farming workflow needs from a browser profile.
// Selectors are XPath expressions. Element operations act on the focused tab
// and on the first node matching the selector; waits are bounded by the
// implementation's configured timeout as well as by ctx.
type Driver interface {
	// NewTab opens a blank tab and focuses it.
	NewTab(ctx context.Context) (Tab, error)
	// SwitchTo focuses an existing tab.
	SwitchTo(ctx context.Context, tab Tab) error
	// Current returns the focused tab, or "" when none is.
	Current() Tab
	// Tabs lists the open page tabs in browser order.
	Tabs(ctx context.Context) ([]TabInfo, error)
	// CloseTab closes a tab. Closing the focused tab leaves no tab focused.
	CloseTab(ctx context.Context, tab Tab) error

	// Navigate loads url in the focused tab.
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Count returns how many elements currently match, without waiting.
	Count(ctx context.Context, selector string) (int, error)
	// Click waits for the element to be visible and clicks it.
	Click(ctx context.Context, selector string) error
	// Type focuses the element and types text into it.
	Type(ctx context.Context, selector, text string) error
	// Text returns the visible text of the element.
	Text(ctx context.Context, selector string) (string, error)
}

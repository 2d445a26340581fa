// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from ctx1 that is also canceled
// when ctx2 is. Values (and so the chromedp target) come from ctx1 while the
// operational deadline can come from ctx2.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()
	return combinedCtx, cancel
}

type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps the values of ctx but is never
// canceled by it. Cleanup that must run after a run was interrupted uses it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}

// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from tab (inheriting its values, which
// carry the chromedp target) that is also canceled when op is done.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// detached keeps the values of its parent but never ends.
type detached struct {
	context.Context
}

func (detached) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detached) Done() <-chan struct{}       { return nil }
func (detached) Err() error                  { return nil }

// Detach returns a context with the values of ctx that outlives it. Close
// uses it so the tab can be torn down after the caller's context ended.
func Detach(ctx context.Context) context.Context {
	return detached{ctx}
}

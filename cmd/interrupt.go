package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/store"
)

// interruptRouter hands SIGINT to the running command. A command that
// installs a handler may absorb an interrupt; an interrupt nobody absorbs
// cancels the command context.
type interruptRouter struct {
	mu      sync.Mutex
	handler func() bool
}

type routerKey struct{}

func withInterruptRouter(ctx context.Context, r *interruptRouter) context.Context {
	return context.WithValue(ctx, routerKey{}, r)
}

// interruptRouterFrom returns nil when the command runs outside Execute.
func interruptRouterFrom(ctx context.Context) *interruptRouter {
	r, _ := ctx.Value(routerKey{}).(*interruptRouter)
	return r
}

// Handle installs h until the returned func is called.
func (r *interruptRouter) Handle(h func() bool) func() {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.handler = nil
		r.mu.Unlock()
	}
}

func (r *interruptRouter) dispatch() bool {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	return h != nil && h()
}

// route cancels ctx on every interrupt the router does not absorb. It
// returns once ctx is done.
func route(ctx context.Context, signals <-chan os.Signal, r *interruptRouter, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if !r.dispatch() {
				cancel()
			}
		}
	}
}

// gracefulAbort flags the run for abort on the first interrupt, so the loop
// stops at the top of its next iteration without cutting an action short.
// The second interrupt, or a failure to persist the flag, is let through.
func gracefulAbort(ctx context.Context, st store.Store, out io.Writer, logger *zap.Logger) func() bool {
	var requested atomic.Bool
	return func() bool {
		if requested.Swap(true) {
			fmt.Fprintln(out, "Cancelling.")
			return false
		}
		abort := true
		if _, err := st.Save(context.WithoutCancel(ctx), schemas.RunPatch{Abort: &abort}); err != nil {
			logger.Warn("Failed to flag run for abort, cancelling instead.", zap.Error(err))
			return false
		}
		fmt.Fprintln(out, "Stopping after the current action. Press Ctrl+C again to cancel now.")
		return true
	}
}

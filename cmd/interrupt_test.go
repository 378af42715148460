package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/store"
)

func TestGracefulAbort(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Create(ctx, schemas.RunRecord{UserIntent: "order socks"}))
	var out bytes.Buffer
	handle := gracefulAbort(ctx, mem, &out, zap.NewNop())

	assert.True(t, handle(), "the first interrupt is absorbed")
	rec, err := mem.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec, "the record stays until the loop sees the flag")
	assert.True(t, rec.Abort)
	assert.Contains(t, out.String(), "Press Ctrl+C again")

	assert.False(t, handle(), "the second interrupt cancels")
	assert.Contains(t, out.String(), "Cancelling.")
}

type failingSaveStore struct {
	store.Store
}

func (failingSaveStore) Save(context.Context, schemas.RunPatch) (*schemas.RunRecord, error) {
	return nil, errors.New("connection reset")
}

func TestGracefulAbort_SaveFailureCancels(t *testing.T) {
	var out bytes.Buffer
	handle := gracefulAbort(context.Background(), failingSaveStore{Store: store.NewMemory()}, &out, zap.NewNop())
	assert.False(t, handle())
	assert.Empty(t, out.String())
}

func TestRoute(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("unabsorbed interrupt cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		signals := make(chan os.Signal, 1)
		done := make(chan struct{})
		go func() {
			route(ctx, signals, &interruptRouter{}, cancel)
			close(done)
		}()

		signals <- os.Interrupt
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("route did not return after cancelling")
		}
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("handler absorbs the first interrupt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		router := &interruptRouter{}
		var calls atomic.Int32
		restore := router.Handle(func() bool { return calls.Add(1) == 1 })
		defer restore()

		signals := make(chan os.Signal)
		done := make(chan struct{})
		go func() {
			route(ctx, signals, router, cancel)
			close(done)
		}()

		signals <- os.Interrupt
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
		assert.NoError(t, ctx.Err())

		signals <- os.Interrupt
		<-done
		assert.Equal(t, int32(2), calls.Load())
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("restored router no longer absorbs", func(t *testing.T) {
		router := &interruptRouter{}
		restore := router.Handle(func() bool { return true })
		assert.True(t, router.dispatch())
		restore()
		assert.False(t, router.dispatch())
	})
}

func TestInterruptRouterFrom(t *testing.T) {
	assert.Nil(t, interruptRouterFrom(context.Background()))
	r := &interruptRouter{}
	assert.Same(t, r, interruptRouterFrom(withInterruptRouter(context.Background(), r)))
}

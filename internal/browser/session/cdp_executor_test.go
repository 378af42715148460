// internal/browser/session/cdp_executor_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/surfer/api/schemas"
)

func newTestExecutor(t *testing.T, fn func(ctx context.Context, actions ...chromedp.Action) error) *cdpExecutor {
	return &cdpExecutor{
		logger:         zaptest.NewLogger(t),
		timeout:        50 * time.Millisecond,
		runActionsFunc: fn,
	}
}

// blockUntilDone simulates a CDP call that only returns when its context ends.
func blockUntilDone(ctx context.Context, _ ...chromedp.Action) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCDPExecutor(t *testing.T) {
	t.Run("DispatchMouseEvent", func(t *testing.T) {
		var captured []chromedp.Action
		executor := newTestExecutor(t, func(ctx context.Context, actions ...chromedp.Action) error {
			captured = actions
			return nil
		})

		data := schemas.MouseEventData{Type: schemas.MouseMove, X: 10.5, Y: 20.5, Button: schemas.ButtonNone}
		require.NoError(t, executor.DispatchMouseEvent(context.Background(), data))

		require.Len(t, captured, 1)
		action, ok := captured[0].(*input.DispatchMouseEventParams)
		require.True(t, ok, "action should be DispatchMouseEventParams")
		assert.Equal(t, input.MouseType("mouseMoved"), action.Type)
		assert.Equal(t, 10.5, action.X)
		assert.Equal(t, 20.5, action.Y)
		assert.Equal(t, input.MouseButton("none"), action.Button)
	})

	t.Run("Timeout", func(t *testing.T) {
		executor := newTestExecutor(t, blockUntilDone)

		err := executor.DispatchMouseEvent(context.Background(), schemas.MouseEventData{Type: schemas.MouseMove})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "mouse event timed out after 50ms")
	})

	t.Run("CallerCancellationIsNotATimeout", func(t *testing.T) {
		executor := newTestExecutor(t, blockUntilDone)
		executor.timeout = time.Minute

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := executor.DispatchMouseEvent(ctx, schemas.MouseEventData{Type: schemas.MouseMove})
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotContains(t, err.Error(), "timed out")
	})

	t.Run("GeometryScriptFailure", func(t *testing.T) {
		boom := errors.New("target crashed")
		executor := newTestExecutor(t, func(ctx context.Context, actions ...chromedp.Action) error {
			return boom
		})

		geo, err := executor.GetElementGeometry(context.Background(), "#test")
		assert.Nil(t, geo)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "'#test'")
	})

	t.Run("GeometryNotFound", func(t *testing.T) {
		// A nil result from the evaluate action leaves the raw message empty.
		executor := newTestExecutor(t, func(ctx context.Context, actions ...chromedp.Action) error {
			return nil
		})

		geo, err := executor.GetElementGeometry(context.Background(), "#missing")
		assert.NoError(t, err)
		assert.Nil(t, geo)
	})

	t.Run("GeometryInvalidSelector", func(t *testing.T) {
		called := false
		executor := newTestExecutor(t, func(ctx context.Context, actions ...chromedp.Action) error {
			called = true
			return errors.New("SyntaxError: not a valid selector")
		})

		geo, err := executor.GetElementGeometry(context.Background(), "div > o:p")
		assert.NoError(t, err)
		assert.Nil(t, geo)
		assert.False(t, called, "an unparseable selector never reaches the page")
	})

	t.Run("ScriptsGuardSelectorErrors", func(t *testing.T) {
		assert.Contains(t, geometryScript, "try { return document.querySelector(sel); } catch (e) { return null; }")
	})

	t.Run("Sleep", func(t *testing.T) {
		executor := newTestExecutor(t, nil)
		start := time.Now()
		require.NoError(t, executor.Sleep(context.Background(), 10*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, executor.Sleep(ctx, time.Hour), context.Canceled)
	})

	t.Run("ExecuteScriptWrapsErrors", func(t *testing.T) {
		boom := errors.New("syntax error")
		executor := newTestExecutor(t, func(ctx context.Context, actions ...chromedp.Action) error {
			return boom
		})
		_, err := executor.ExecuteScript(context.Background(), "1 +")
		assert.ErrorIs(t, err, boom)
	})
}

func TestJSONEncode(t *testing.T) {
	assert.Equal(t, `"a\"b"`, jsonEncode(`a"b`))
	assert.Equal(t, `12.5`, jsonEncode(12.5))
	assert.Equal(t, `""`, jsonEncode(func() {}))
}

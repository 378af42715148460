// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
)

const defaultActionTimeout = 10 * time.Second

// geometryScript resolves a selector to its border box. It yields null when
// nothing matches, the selector does not parse, or the match is not rendered.
const geometryScript = `(function(sel) {
	const node = (() => { try { return document.querySelector(sel); } catch (e) { return null; } })();
	if (!node) return null;
	const rect = node.getBoundingClientRect();
	const style = window.getComputedStyle(node);
	if (rect.width <= 0 || rect.height <= 0 || style.display === 'none' || style.visibility === 'hidden') {
		return null;
	}
	return {
		vertices: [rect.left, rect.top, rect.right, rect.top, rect.right, rect.bottom, rect.left, rect.bottom],
		width: Math.round(rect.width),
		height: Math.round(rect.height),
		tagName: node.tagName || '',
		type: node.type || ''
	};
})(%s)`

// cdpExecutor implements humanoid.Executor on top of a chromedp tab.
type cdpExecutor struct {
	logger         *zap.Logger
	timeout        time.Duration
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

var _ humanoid.Executor = (*cdpExecutor)(nil)

func (e *cdpExecutor) opTimeout() time.Duration {
	if e.timeout <= 0 {
		return defaultActionTimeout
	}
	return e.timeout
}

// run applies the per-operation timeout and tags deadline failures with op.
func (e *cdpExecutor) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	timeout := e.opTimeout()
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := e.runActionsFunc(opCtx, actions...)
	if err != nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		e.logger.Debug("CDP operation timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return fmt.Errorf("session: %s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	return err
}

// Sleep pauses for d unless ctx ends first.
func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DispatchMouseEvent sends one native mouse event.
func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	return e.run(ctx, "mouse event", p)
}

// GetElementGeometry returns nil geometry for a missing or unrendered element
// and for a selector that does not parse.
func (e *cdpExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if _, err := cascadia.Compile(selector); err != nil {
		e.logger.Debug("Selector does not parse, treating as missing.", zap.String("selector", selector), zap.Error(err))
		return nil, nil
	}
	res, err := e.evaluate(ctx, "geometry", fmt.Sprintf(geometryScript, jsonEncode(selector)))
	if err != nil {
		return nil, fmt.Errorf("session: failed to read geometry for '%s': %w", selector, err)
	}
	if len(res) == 0 || string(res) == "null" {
		return nil, nil
	}

	var geom schemas.ElementGeometry
	if err := json.Unmarshal(res, &geom); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal geometry for '%s': %w (payload: %s)", selector, err, string(res))
	}
	if geom.Width <= 0 || geom.Height <= 0 {
		return nil, nil
	}
	return &geom, nil
}

// ExecuteScript evaluates script in the page and returns its JSON value.
func (e *cdpExecutor) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	res, err := e.evaluate(ctx, "script", script)
	if err != nil {
		return nil, fmt.Errorf("session: script evaluation failed: %w", err)
	}
	return res, nil
}

func (e *cdpExecutor) evaluate(ctx context.Context, op, script string) (json.RawMessage, error) {
	var res json.RawMessage
	err := e.run(ctx, op, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	return res, err
}

// jsonEncode encodes v for interpolation into a script.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// internal/browser/humanoid/movement.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// clickScript fires the scripted mousedown, mouseup and click sequence at the
// element's center. It reports false when the element has disappeared.
const clickScript = `(function(sel, x, y) {
	const el = (() => { try { return document.querySelector(sel); } catch (e) { return null; } })();
	if (!el) return false;
	for (const type of ['mousedown', 'mouseup', 'click']) {
		el.dispatchEvent(new MouseEvent(type, {
			bubbles: true, cancelable: true, view: window, clientX: x, clientY: y
		}));
	}
	return true;
})(%s, %s, %s)`

// MoveTo animates the cursor to the center of the element matching
// selector and clicks it. A missing element yields {OK: false} and a nil
// error. A page interrupt during the animation yields {OK: false} and
// ErrInterrupted.
func (c *Controller) MoveTo(ctx context.Context, selector string) (MoveResult, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return MoveResult{}, ErrBusy
	}
	defer c.busy.Store(false)

	geo, err := c.locate(ctx, selector)
	if err != nil || geo == nil {
		return MoveResult{}, err
	}
	target, valid := boxToCenter(geo)
	if !valid {
		return MoveResult{}, nil
	}
	info := &ElementInfo{
		Selector: selector,
		TagName:  geo.TagName,
		Type:     geo.Type,
		Center:   schemas.CursorCoordinate{X: target.X, Y: target.Y},
	}

	if err := c.animate(ctx, target); err != nil {
		return MoveResult{Element: info}, err
	}

	if err := c.executor.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return MoveResult{Element: info}, err
	}

	c.showClick(ctx, info.Center)

	delivered, err := c.runBool(ctx, fmt.Sprintf(clickScript,
		jsLiteral(selector), jsLiteral(target.X), jsLiteral(target.Y)))
	if err != nil {
		return MoveResult{Element: info}, fmt.Errorf("humanoid: failed to click '%s': %w", selector, err)
	}
	if !delivered {
		c.logger.Debug("Target vanished before the click.", zap.String("selector", selector))
	}
	return MoveResult{OK: delivered, Element: info}, nil
}

// animate eases the tracked position toward target once per tick until
// both axis deltas are under the threshold. The ticker is always stopped.
func (c *Controller) animate(ctx context.Context, target Vector2D) error {
	var interrupts <-chan string
	if c.interrupts != nil {
		interrupts = c.interrupts.Interrupts()
		drain(interrupts)
	}

	tick := c.cfg.Tick
	if tick <= 0 {
		tick = 16 * time.Millisecond
	}
	factor := c.cfg.Smoothing
	if factor <= 0 || factor > 1 {
		factor = 0.3
	}
	threshold := c.cfg.Threshold
	if threshold <= 0 {
		threshold = 1
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pos := c.tracker.vector()
	for ticks := 0; !pos.Within(target, threshold); ticks++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-interrupts:
			c.logger.Debug("Cursor animation interrupted.", zap.String("reason", reason))
			return fmt.Errorf("%w: %s", ErrInterrupted, reason)
		case <-ticker.C:
		}

		if c.cfg.MaxTicks > 0 && ticks+1 >= c.cfg.MaxTicks {
			pos = target
		} else {
			pos = pos.Ease(target, factor)
		}
		c.tracker.set(pos)

		if c.cfg.NativeMoves {
			err := c.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
				Type:   schemas.MouseMove,
				X:      pos.X,
				Y:      pos.Y,
				Button: schemas.ButtonNone,
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Debug("Native mouse move failed.", zap.Error(err))
			}
		}
	}
	return nil
}

func (c *Controller) showClick(ctx context.Context, at schemas.CursorCoordinate) {
	if c.visualizer == nil {
		return
	}
	if c.overlay != nil && c.overlay.Blurred() {
		return
	}
	if err := c.visualizer.ShowClick(ctx, at); err != nil {
		c.logger.Debug("Click marker failed.", zap.Error(err))
	}
}

// drain discards interrupts raised before the animation started.
func drain(ch <-chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

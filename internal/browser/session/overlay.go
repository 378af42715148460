// internal/browser/session/overlay.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
)

const overlayID = "__surfer_overlay"

// overlayScript shows or hides a full page veil that keeps the user from
// interacting with the page while the agent waits on them.
const overlayScript = `(function(id, on) {
	let el = document.getElementById(id);
	if (!on) {
		if (el) el.remove();
		return true;
	}
	if (!el) {
		el = document.createElement('div');
		el.id = id;
		el.style.cssText = 'position:fixed;inset:0;z-index:2147483646;backdrop-filter:blur(3px);background:rgba(0,0,0,.15)';
		document.documentElement.appendChild(el);
	}
	return true;
})(%s, %t)`

const clickMarkerScript = `(function(x, y, ms) {
	const dot = document.createElement('div');
	dot.style.cssText = 'position:fixed;width:20px;height:20px;margin:-10px 0 0 -10px;border-radius:50%;' +
		'background:rgba(255,72,72,.6);pointer-events:none;z-index:2147483647;transition:transform .3s,opacity .3s;' +
		'left:' + x + 'px;top:' + y + 'px';
	document.documentElement.appendChild(dot);
	requestAnimationFrame(() => { dot.style.transform = 'scale(2)'; dot.style.opacity = '0'; });
	setTimeout(() => dot.remove(), ms);
	return true;
})(%s, %s, %d)`

// scriptRunner is the slice of the executor the overlay needs.
type scriptRunner interface {
	ExecuteScript(ctx context.Context, script string) (json.RawMessage, error)
}

// Overlay is the in-page surface of the agent: the blur veil shown while a
// clarification is pending and the click marker.
type Overlay struct {
	runner  scriptRunner
	logger  *zap.Logger
	marker  time.Duration
	blurred atomic.Bool
}

// NewOverlay creates an overlay for the session's tab. marker is how long a
// click marker stays on screen.
func NewOverlay(s *Session, marker time.Duration) *Overlay {
	return newOverlay(s.executor, s.logger, marker)
}

func newOverlay(r scriptRunner, logger *zap.Logger, marker time.Duration) *Overlay {
	if marker <= 0 {
		marker = 500 * time.Millisecond
	}
	return &Overlay{runner: r, logger: logger.Named("overlay"), marker: marker}
}

// Blur veils the page.
func (o *Overlay) Blur(ctx context.Context) error {
	o.blurred.Store(true)
	return o.toggle(ctx, true)
}

// Unblur removes the veil.
func (o *Overlay) Unblur(ctx context.Context) error {
	o.blurred.Store(false)
	return o.toggle(ctx, false)
}

// Blurred reports whether the veil is up.
func (o *Overlay) Blurred() bool {
	return o.blurred.Load()
}

func (o *Overlay) toggle(ctx context.Context, on bool) error {
	if _, err := o.runner.ExecuteScript(ctx, fmt.Sprintf(overlayScript, jsonEncode(overlayID), on)); err != nil {
		return fmt.Errorf("session: failed to toggle overlay: %w", err)
	}
	return nil
}

// ShowClick flashes a marker at the click position.
func (o *Overlay) ShowClick(ctx context.Context, at schemas.CursorCoordinate) error {
	script := fmt.Sprintf(clickMarkerScript, jsonEncode(at.X), jsonEncode(at.Y), o.marker.Milliseconds())
	if _, err := o.runner.ExecuteScript(ctx, script); err != nil {
		o.logger.Debug("Click marker could not be drawn.", zap.Error(err))
		return err
	}
	return nil
}

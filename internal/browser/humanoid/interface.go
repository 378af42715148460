// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xkilldash9x/surfer/api/schemas"
)

var (
	// ErrBusy is returned when a motion is requested while another is running.
	ErrBusy = errors.New("humanoid: cursor is already moving")
	// ErrInterrupted is returned when the page threw or navigated mid-animation.
	ErrInterrupted = errors.New("humanoid: animation interrupted by the page")
	// ErrNotFound is returned when a typing or submit target is not on the page.
	ErrNotFound = errors.New("humanoid: element not found")
)

// Executor defines the low-level interface required by the Controller.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	// GetElementGeometry returns nil geometry and a nil error when the
	// selector matches nothing or the match is not rendered.
	GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
	ExecuteScript(ctx context.Context, script string) (json.RawMessage, error)
}

// ClickVisualizer draws a transient marker where a click is about to land.
type ClickVisualizer interface {
	ShowClick(ctx context.Context, at schemas.CursorCoordinate) error
}

// OverlayState reports whether the agent overlay is currently blurred.
type OverlayState interface {
	Blurred() bool
}

// InterruptSource delivers page events that invalidate an in-flight
// animation, such as an uncaught exception or a main frame navigation.
type InterruptSource interface {
	Interrupts() <-chan string
}

// ElementInfo describes the element a motion ended on.
type ElementInfo struct {
	Selector string
	TagName  string
	Type     string
	Center   schemas.CursorCoordinate
}

// MoveResult is the outcome of MoveTo. OK is false when the element could
// not be found or the click could not be delivered.
type MoveResult struct {
	OK      bool
	Element *ElementInfo
}

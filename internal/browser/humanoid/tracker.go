// internal/browser/humanoid/tracker.go
package humanoid

import (
	"sync"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// Tracker holds the current visual cursor position. The controller is the
// only writer; any number of goroutines may read.
type Tracker struct {
	mu      sync.RWMutex
	pos     Vector2D
	version uint64
}

// NewTracker returns a tracker at the origin.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Position returns the last published coordinate.
func (t *Tracker) Position() schemas.CursorCoordinate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return schemas.CursorCoordinate{X: t.pos.X, Y: t.pos.Y}
}

// Snapshot returns the coordinate with a counter that increments on every
// update, so pollers can tell whether anything moved since their last read.
func (t *Tracker) Snapshot() (schemas.CursorCoordinate, uint64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return schemas.CursorCoordinate{X: t.pos.X, Y: t.pos.Y}, t.version
}

// Restore places the cursor at a previously persisted coordinate.
func (t *Tracker) Restore(c schemas.CursorCoordinate) {
	t.set(Vector2D{X: c.X, Y: c.Y})
}

func (t *Tracker) set(v Vector2D) {
	t.mu.Lock()
	t.pos = v
	t.version++
	t.mu.Unlock()
}

func (t *Tracker) vector() Vector2D {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pos
}

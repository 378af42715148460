package humanoid

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// mockExecutor implements Executor for tests. Every call is recorded.
//
// Overrides must not call back into the Controller: MoveTo holds the busy
// flag for its whole duration.
type mockExecutor struct {
	t  *testing.T
	mu sync.Mutex

	dispatchedEvents []schemas.MouseEventData
	scripts          []string
	sleepDurations   []time.Duration

	MockGetElementGeometry func(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
	MockExecuteScript      func(ctx context.Context, script string) (json.RawMessage, error)
	MockSleep              func(ctx context.Context, d time.Duration) error
	MockDispatchMouseEvent func(ctx context.Context, data schemas.MouseEventData) error
}

func newMockExecutor(t *testing.T) *mockExecutor {
	return &mockExecutor{t: t}
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	m.mu.Unlock()
	if m.MockDispatchMouseEvent != nil {
		return m.MockDispatchMouseEvent(ctx, data)
	}
	return ctx.Err()
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	m.mu.Unlock()
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return ctx.Err()
}

// GetElementGeometry defaults to a 50x50 box centered on (125, 125).
func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	if m.MockGetElementGeometry != nil {
		return m.MockGetElementGeometry(ctx, selector)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &schemas.ElementGeometry{
		Vertices: []float64{100, 100, 150, 100, 150, 150, 100, 150},
		Width:    50,
		Height:   50,
		TagName:  "BUTTON",
	}, nil
}

// ExecuteScript defaults to reporting success.
func (m *mockExecutor) ExecuteScript(ctx context.Context, script string) (json.RawMessage, error) {
	m.mu.Lock()
	m.scripts = append(m.scripts, script)
	m.mu.Unlock()
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, script)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return json.RawMessage("true"), nil
}

func (m *mockExecutor) events() []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.MouseEventData(nil), m.dispatchedEvents...)
}

func (m *mockExecutor) sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleepDurations...)
}

// scriptsContaining returns the recorded scripts that contain marker.
func (m *mockExecutor) scriptsContaining(marker string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.scripts {
		if strings.Contains(s, marker) {
			out = append(out, s)
		}
	}
	return out
}

// fakeInterrupts is a manually driven InterruptSource.
type fakeInterrupts struct {
	ch chan string
}

func newFakeInterrupts() *fakeInterrupts {
	return &fakeInterrupts{ch: make(chan string, 4)}
}

func (f *fakeInterrupts) Interrupts() <-chan string { return f.ch }

type fakeOverlay struct{ blurred bool }

func (o *fakeOverlay) Blurred() bool { return o.blurred }

type recordingVisualizer struct {
	mu     sync.Mutex
	clicks []schemas.CursorCoordinate
}

func (v *recordingVisualizer) ShowClick(_ context.Context, at schemas.CursorCoordinate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clicks = append(v.clicks, at)
	return nil
}

func (v *recordingVisualizer) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.clicks)
}

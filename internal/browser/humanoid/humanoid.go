// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/internal/config"
)

// Controller drives the visual cursor and synthetic input for one tab.
// It is not reentrant: one motion runs at a time.
type Controller struct {
	// mu protects rng.
	mu  sync.Mutex
	rng *rand.Rand

	cfg        config.CursorConfig
	logger     *zap.Logger
	executor   Executor
	tracker    *Tracker
	visualizer ClickVisualizer
	overlay    OverlayState
	interrupts InterruptSource

	busy atomic.Bool
}

// Option configures optional Controller collaborators.
type Option func(*Controller)

// WithTracker publishes cursor positions to t instead of a private tracker.
func WithTracker(t *Tracker) Option {
	return func(c *Controller) { c.tracker = t }
}

// WithVisualizer sets the click marker hook.
func WithVisualizer(v ClickVisualizer) Option {
	return func(c *Controller) { c.visualizer = v }
}

// WithOverlay lets the controller suppress the click marker while the
// overlay is blurred.
func WithOverlay(o OverlayState) Option {
	return func(c *Controller) { c.overlay = o }
}

// WithInterrupts subscribes animations to page interrupt events.
func WithInterrupts(s InterruptSource) Option {
	return func(c *Controller) { c.interrupts = s }
}

// WithRand replaces the keystroke jitter source.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// New creates a Controller.
func New(cfg config.CursorConfig, logger *zap.Logger, executor Executor, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewTracker()
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// NewTestController creates a Controller with deterministic jitter and a
// fast tick for tests.
func NewTestController(executor Executor, seed int64, opts ...Option) *Controller {
	cfg := config.NewDefaultConfig().Cursor()
	cfg.Tick = time.Millisecond
	opts = append([]Option{WithRand(rand.New(rand.NewSource(seed)))}, opts...)
	return New(cfg, zap.NewNop(), executor, opts...)
}

// Tracker returns the sink the controller publishes positions to.
func (c *Controller) Tracker() *Tracker {
	return c.tracker
}

// keyDelay picks a jittered per-character delay in [KeyDelayMin, KeyDelayMax].
func (c *Controller) keyDelay() time.Duration {
	lo, hi := c.cfg.KeyDelayMin, c.cfg.KeyDelayMax
	if hi <= lo {
		return lo
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo + time.Duration(c.rng.Int63n(int64(hi-lo)+1))
}

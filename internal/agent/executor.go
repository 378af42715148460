package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/oracle"
)

// ExecContext is the per-iteration state an action is resolved against.
type ExecContext struct {
	Candidates []schemas.CandidateElement
	Doc        *dom.Document
	Options    schemas.PageOptions
	Visual     schemas.Visual
}

// Outcome is what running an action produced.
type Outcome struct {
	// Clarification is the user's answer to a clarify action.
	Clarification string
	Failed        bool
}

// Runnable performs the effect of an action. It is nil for actions that
// failed to resolve or that need no effect.
type Runnable func(ctx context.Context) (Outcome, error)

// Result is the prepared form of an action.
type Result struct {
	Record    schemas.ActionRecord
	Runnable  Runnable
	Navigates bool
	Terminal  bool
}

// ActionHandler prepares one action type.
type ActionHandler func(ctx context.Context, action schemas.Action, ec ExecContext, res *Result) error

// Executor maps decided actions onto tab control, the cursor and the
// clarification surface.
type Executor struct {
	cfg       config.AgentConfig
	tabs      TabController
	cursor    Cursor
	clarifier Clarifier
	overlay   OverlayBlur
	notifier  Notifier
	estimator oracle.Estimator
	logger    *zap.Logger
	handlers  map[schemas.ActionType]ActionHandler
}

// ExecutorOption configures optional collaborators.
type ExecutorOption func(*Executor)

// WithClarifier attaches the surface clarify actions ask through.
func WithClarifier(c Clarifier) ExecutorOption {
	return func(e *Executor) { e.clarifier = c }
}

// WithOverlay attaches the overlay blurred while a clarification is pending.
func WithOverlay(o OverlayBlur) ExecutorOption {
	return func(e *Executor) { e.overlay = o }
}

// WithNotifier attaches the user-facing notifier for per-action warnings.
func WithNotifier(n Notifier) ExecutorOption {
	return func(e *Executor) { e.notifier = n }
}

// WithEstimator enables the radius fallback for indices that do not resolve.
func WithEstimator(est oracle.Estimator) ExecutorOption {
	return func(e *Executor) { e.estimator = est }
}

// NewExecutor creates an Executor.
func NewExecutor(cfg config.AgentConfig, tabs TabController, cursor Cursor, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg:      cfg,
		tabs:     tabs,
		cursor:   cursor,
		overlay:  nopOverlay{},
		logger:   logger.Named("executor"),
		handlers: make(map[schemas.ActionType]ActionHandler),
	}
	e.notifier = logNotifier{logger: e.logger}
	for _, opt := range opts {
		opt(e)
	}
	e.registerHandlers()
	return e
}

func (e *Executor) registerHandlers() {
	e.handlers[schemas.ActionNavigate] = e.handleNavigate
	e.handlers[schemas.ActionClarify] = e.handleClarify
	e.handlers[schemas.ActionClick] = e.handleClick
	e.handlers[schemas.ActionInput] = e.handleInput
	e.handlers[schemas.ActionRefresh] = e.handleRefresh
	e.handlers[schemas.ActionBack] = e.handleBack
	e.handlers[schemas.ActionDone] = e.handleDone
}

// Execute prepares action. The returned record starts IN_PROGRESS with the
// in-progress summary. An index that does not resolve yields a FAILED record,
// a warning and no runnable.
func (e *Executor) Execute(ctx context.Context, action schemas.Action, ec ExecContext) (Result, error) {
	handler, ok := e.handlers[action.Type]
	if !ok {
		return Result{}, fmt.Errorf("no handler registered for action type: %s", action.Type)
	}
	res := Result{
		Record: schemas.ActionRecord{
			Action:  action,
			Summary: Describe(action),
			State:   schemas.StateInProgress,
		},
		Navigates: action.Navigates(),
	}
	if err := handler(ctx, action, ec, &res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *Executor) handleNavigate(_ context.Context, action schemas.Action, _ ExecContext, res *Result) error {
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		if err := sleep(ctx, e.cfg.NavigateDelay); err != nil {
			return Outcome{}, err
		}
		return Outcome{}, e.tabs.Navigate(ctx, action.URL)
	}
	return nil
}

func (e *Executor) handleRefresh(_ context.Context, _ schemas.Action, _ ExecContext, res *Result) error {
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		return Outcome{}, e.tabs.Refresh(ctx)
	}
	return nil
}

func (e *Executor) handleBack(_ context.Context, _ schemas.Action, _ ExecContext, res *Result) error {
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		return Outcome{}, e.tabs.Back(ctx)
	}
	return nil
}

func (e *Executor) handleDone(_ context.Context, _ schemas.Action, _ ExecContext, res *Result) error {
	res.Terminal = true
	return nil
}

func (e *Executor) handleClarify(_ context.Context, action schemas.Action, _ ExecContext, res *Result) error {
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		if e.clarifier == nil {
			e.notifier.Notify(ctx, Notice{Level: NoticeWarn, Code: ErrCodeClarifyUnavailable, Message: "No clarification surface is attached: " + action.Question})
			return Outcome{Failed: true}, nil
		}
		if err := e.overlay.Blur(ctx); err != nil {
			e.logger.Debug("Failed to blur overlay.", zap.Error(err))
		}
		// Unblur even when the wait was cancelled.
		defer func() {
			if err := e.overlay.Unblur(context.WithoutCancel(ctx)); err != nil {
				e.logger.Debug("Failed to unblur overlay.", zap.Error(err))
			}
		}()
		answer, err := e.clarifier.AskUser(ctx, action.Question)
		if err != nil {
			return Outcome{}, fmt.Errorf("clarification failed: %w", err)
		}
		return Outcome{Clarification: answer}, nil
	}
	return nil
}

func (e *Executor) handleClick(ctx context.Context, action schemas.Action, ec ExecContext, res *Result) error {
	selector, ok := e.resolve(ctx, action, ec)
	if !ok {
		e.unresolved(ctx, action, res)
		return nil
	}
	res.Record.QuerySelector = selector
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		moved, err := e.cursor.MoveTo(ctx, selector)
		if err != nil {
			return e.cursorFailure(ctx, action, selector, err)
		}
		if !moved.OK {
			e.warnNotFound(ctx, action, selector)
			return Outcome{Failed: true}, nil
		}
		return Outcome{}, nil
	}
	return nil
}

func (e *Executor) handleInput(ctx context.Context, action schemas.Action, ec ExecContext, res *Result) error {
	selector, ok := e.resolve(ctx, action, ec)
	if !ok {
		e.unresolved(ctx, action, res)
		return nil
	}
	res.Record.QuerySelector = selector
	submit := action.WithSubmit && ec.Options.UseWithSubmit
	res.Runnable = func(ctx context.Context) (Outcome, error) {
		moved, err := e.cursor.MoveTo(ctx, selector)
		if err != nil {
			return e.cursorFailure(ctx, action, selector, err)
		}
		if !moved.OK {
			e.warnNotFound(ctx, action, selector)
			return Outcome{Failed: true}, nil
		}
		if err := e.cursor.Type(ctx, selector, action.Content); err != nil {
			return e.cursorFailure(ctx, action, selector, err)
		}
		if !submit {
			return Outcome{}, nil
		}
		if err := sleep(ctx, e.cfg.SubmitDelay); err != nil {
			return Outcome{}, err
		}
		if err := e.cursor.SubmitForm(ctx, selector); err != nil {
			return e.cursorFailure(ctx, action, selector, err)
		}
		return Outcome{}, nil
	}
	return nil
}

// resolve maps the action's idx onto a selector from this iteration's
// candidates. With an estimator attached, a miss falls back to the nearest
// candidate around the estimated location of the action's description.
// Frame candidates never resolve: their selectors are relative to the frame
// and the cursor only reaches the top-level document.
func (e *Executor) resolve(ctx context.Context, action schemas.Action, ec ExecContext) (string, bool) {
	idx := action.Index()
	if idx != schemas.NoIndex {
		for _, c := range ec.Candidates {
			if c.Idx != idx {
				continue
			}
			if !c.Meta.InFrame {
				return c.Meta.QuerySelector, c.Meta.QuerySelector != ""
			}
			e.logger.Debug("Candidate lives in a frame, not targetable.", zap.Int("idx", idx))
			break
		}
	}
	if e.estimator == nil || ec.Doc == nil || !ec.Visual.OK {
		return "", false
	}

	description := action.Description
	if description == "" {
		description = action.Content
	}
	at, ok, err := e.estimator.Estimate(ctx, description, ec.Visual)
	if err != nil || !ok {
		e.logger.Debug("Location estimate unavailable.", zap.Int("idx", idx), zap.Error(err))
		return "", false
	}
	near := dom.WithinRadius(ec.Doc, dom.OptionsFor(ec.Options), dom.Point{X: at.X, Y: at.Y}, e.cfg.FallbackRadius)
	if len(near) == 0 {
		return "", false
	}
	e.logger.Debug("Resolved element by estimated location.",
		zap.Int("idx", idx), zap.Float64("x", at.X), zap.Float64("y", at.Y),
		zap.String("selector", near[0].Meta.QuerySelector))
	return near[0].Meta.QuerySelector, near[0].Meta.QuerySelector != ""
}

func (e *Executor) unresolved(ctx context.Context, action schemas.Action, res *Result) {
	res.Record.State = schemas.StateFailed
	res.Record.Summary = Summarize(res.Record, false)
	e.notifier.Notify(ctx, Notice{
		Level:   NoticeWarn,
		Code:    ErrCodeElementNotFound,
		Message: fmt.Sprintf("Could not find element %d for %s.", action.Index(), action.Type),
	})
}

func (e *Executor) warnNotFound(ctx context.Context, action schemas.Action, selector string) {
	e.notifier.Notify(ctx, Notice{
		Level:   NoticeWarn,
		Code:    ErrCodeElementNotFound,
		Message: fmt.Sprintf("Element for %s is no longer on the page: %s", action.Type, selector),
	})
}

// cursorFailure turns the recoverable cursor errors into a failed outcome.
// Anything else is returned as is.
func (e *Executor) cursorFailure(ctx context.Context, action schemas.Action, selector string, err error) (Outcome, error) {
	if errors.Is(err, humanoid.ErrNotFound) || errors.Is(err, humanoid.ErrInterrupted) {
		e.logger.Warn("Cursor action did not complete.", zap.String("action", string(action.Type)), zap.String("selector", selector), zap.Error(err))
		e.warnNotFound(ctx, action, selector)
		return Outcome{Failed: true}, nil
	}
	return Outcome{}, err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

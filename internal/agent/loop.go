package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/oracle"
	"github.com/xkilldash9x/surfer/internal/store"
)

// Deps are the collaborators of a Loop. Sink, Notifier and Takeover are
// optional.
type Deps struct {
	Store    store.Store
	Ledger   *Ledger
	Tabs     TabController
	Executor *Executor
	Oracles  oracle.Set
	Policy   *SitePolicy
	Sink     StateSink
	Notifier Notifier
	Takeover Takeover
}

// Loop drives a run from its persisted record to a terminal state.
type Loop struct {
	cfg    config.AgentConfig
	deps   Deps
	logger *zap.Logger
}

// NewLoop creates a Loop.
func NewLoop(cfg config.AgentConfig, deps Deps, logger *zap.Logger) *Loop {
	logger = logger.Named("loop")
	if deps.Sink == nil {
		deps.Sink = logSink{logger: logger}
	}
	if deps.Notifier == nil {
		deps.Notifier = logNotifier{logger: logger}
	}
	if deps.Takeover == nil {
		deps.Takeover = neverTakeover{}
	}
	if deps.Policy == nil {
		deps.Policy = NewSitePolicy(nil)
	}
	if deps.Ledger == nil {
		deps.Ledger = NewLedger(deps.Store, logger)
	}
	return &Loop{cfg: cfg, deps: deps, logger: logger}
}

// RunUntilCompletion iterates until the run reaches a terminal state or the
// step budget is spent. It returns ThinkingIdle without doing anything when
// there is no active run. A run-fatal error is persisted on the record and
// returned as an *Error with ErrCodeRunFatal.
func (l *Loop) RunUntilCompletion(ctx context.Context) (schemas.ThinkingStateType, error) {
	for i := 0; i < l.cfg.MaxSteps; i++ {
		state, err := l.iterate(ctx, i)
		if err != nil {
			return l.fail(ctx, err)
		}
		switch state {
		case "":
			continue
		case schemas.ThinkingIdle:
			l.logger.Info("No active run.")
			l.emit(schemas.ThinkingIdle)
			return schemas.ThinkingIdle, nil
		default:
			return l.finish(ctx, state), nil
		}
	}
	l.deps.Notifier.Notify(ctx, Notice{
		Level:   NoticeWarn,
		Message: fmt.Sprintf("Step budget of %d exhausted without completing the task.", l.cfg.MaxSteps),
	})
	return l.finish(ctx, schemas.ThinkingRequireAssistance), nil
}

// iterate runs one oracle round trip. An empty state means keep going.
func (l *Loop) iterate(ctx context.Context, iteration int) (schemas.ThinkingStateType, error) {
	l.emit(schemas.ThinkingAwaitingUIChanges)
	if err := sleep(ctx, l.cfg.SettleDelay); err != nil {
		return "", err
	}

	run, err := l.deps.Store.Load(ctx)
	if err != nil {
		return "", fatalf("load run", err)
	}
	if run == nil {
		return schemas.ThinkingIdle, nil
	}
	if run.Abort {
		if err := l.deps.Store.Clear(ctx); err != nil {
			return "", fatalf("clear aborted run", err)
		}
		l.deps.Notifier.Notify(ctx, Notice{Level: NoticeInfo, Message: "Run aborted."})
		return schemas.ThinkingAborted, nil
	}

	logger := l.logger.With(zap.Int("iteration", iteration), zap.Int("step", run.Step))

	var visual schemas.Visual
	if l.cfg.CaptureVisual {
		if visual, err = l.deps.Tabs.CaptureVisual(ctx); err != nil {
			return "", fatalf("capture visual", err)
		}
		if !visual.OK {
			return "", fatalf("capture visual", errors.New("tab returned no image"))
		}
		l.saveScreenshot(run.Step, visual, logger)
	}

	doc, err := l.deps.Tabs.Snapshot(ctx)
	if err != nil {
		return "", fatalf("snapshot page", err)
	}
	href, err := l.deps.Tabs.URL(ctx)
	if err != nil {
		return "", fatalf("read page url", err)
	}
	opts := l.deps.Policy.Resolve(href)
	candidates := dom.Minify(doc, dom.OptionsFor(opts))
	logger.Debug("Page minified.", zap.String("url", href), zap.Int("candidates", len(candidates)))

	if l.cfg.EvaluatePrevious && l.deps.Oracles.Evaluator != nil {
		if err := l.evaluatePrevious(ctx, candidates, logger); err != nil {
			return "", err
		}
		if run, err = l.reload(ctx); err != nil {
			return "", err
		}
	}

	l.emit(schemas.ThinkingDecidingAction)
	resp, err := l.deps.Oracles.Decider.Decide(ctx, oracle.Request{
		Intent:     run.UserIntent,
		Candidates: candidates,
		History:    run.History,
		URL:        href,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Error("Decision oracle failed, retrying next iteration.", zap.Error(err))
		l.deps.Notifier.Notify(ctx, Notice{Level: NoticeError, Code: ErrCodeOracleFailure, Message: "Failed to decide next action: " + err.Error()})
		return "", nil
	}

	if unknown := unknownTypes(resp.Actions); len(unknown) > 0 {
		logger.Warn("Decision oracle returned unknown action types, retrying next iteration.", zap.Strings("types", unknown))
		l.deps.Notifier.Notify(ctx, Notice{Level: NoticeWarn, Code: ErrCodeOracleFailure, Message: "Unknown action: " + strings.Join(unknown, ", ")})
		return "", nil
	}

	actions := OrderActions(FilterActions(resp.Actions))
	if len(actions) == 0 {
		logger.Warn("Oracle returned no usable actions.", zap.Int("raw", len(resp.Actions)))
		l.deps.Notifier.Notify(ctx, Notice{Level: NoticeWarn, Code: ErrCodeNoActions, Message: "No actions were returned for this page."})
		return "", nil
	}

	return l.runBatch(ctx, run, actions, ExecContext{
		Candidates: candidates,
		Doc:        doc,
		Options:    opts,
		Visual:     visual,
	}, logger)
}

// runBatch executes an ordered batch within the run's current step.
func (l *Loop) runBatch(ctx context.Context, run *schemas.RunRecord, actions []schemas.Action, ec ExecContext, logger *zap.Logger) (schemas.ThinkingStateType, error) {
	step := run.Step
	intent := run.UserIntent
	advanced := false

	for i := range actions {
		action := actions[i]
		if i > 0 && l.deps.Takeover.Requested() {
			logger.Info("Takeover requested, handing control to the user.", zap.Int("remaining", len(actions)-i))
			l.deps.Notifier.Notify(ctx, Notice{Level: NoticeInfo, Message: "Paused for takeover."})
			if err := l.deps.Takeover.Await(ctx); err != nil {
				return "", fatalf("await takeover", err)
			}
			break
		}

		l.deps.Sink.Emit(schemas.ThinkingState{Type: schemas.ThinkingAction, Action: &action})
		res, err := l.deps.Executor.Execute(ctx, action, ec)
		if err != nil {
			return "", fatalf("prepare "+string(action.Type), err)
		}

		if res.Terminal {
			if err := l.deps.Store.Clear(ctx); err != nil {
				return "", fatalf("clear completed run", err)
			}
			l.deps.Notifier.Notify(ctx, Notice{Level: NoticeInfo, Message: action.Explanation})
			return schemas.ThinkingDone, nil
		}

		if res.Runnable == nil {
			if err := l.deps.Ledger.Append(ctx, step, res.Record); err != nil {
				return "", fatalf("append history", err)
			}
			continue
		}

		if res.Navigates {
			// The page is about to go away, so everything is written first.
			if err := l.deps.Ledger.Append(ctx, step, res.Record); err != nil {
				return "", fatalf("append history", err)
			}
			if _, err := l.deps.Ledger.IncrStep(ctx); err != nil {
				return "", fatalf("advance step", err)
			}
			advanced = true
			if _, err := res.Runnable(ctx); err != nil {
				return "", fatalf(string(action.Type), err)
			}
			if skipped := len(actions) - i - 1; skipped > 0 {
				logger.Debug("Navigation ends the batch.", zap.Int("skipped", skipped))
			}
			break
		}

		if action.Type == schemas.ActionClick {
			l.emit(schemas.ThinkingClickingButton)
		}
		out, err := res.Runnable(ctx)
		if err != nil {
			return "", fatalf(string(action.Type), err)
		}
		if out.Failed {
			res.Record.State = schemas.StateFailed
			res.Record.Summary = Summarize(res.Record, false)
		}
		if err := l.deps.Ledger.Append(ctx, step, res.Record); err != nil {
			return "", fatalf("append history", err)
		}
		if out.Clarification != "" {
			intent = FoldClarification(intent, out.Clarification)
			if _, err := l.deps.Store.Save(ctx, schemas.RunPatch{UserIntent: &intent}); err != nil {
				return "", fatalf("save clarified intent", err)
			}
		}
	}

	if !advanced {
		if _, err := l.deps.Ledger.IncrStep(ctx); err != nil {
			return "", fatalf("advance step", err)
		}
	}
	return "", nil
}

// evaluatePrevious grades the newest step against the current page. Oracle
// failures are logged and leave history as it was.
func (l *Loop) evaluatePrevious(ctx context.Context, candidates []schemas.CandidateElement, logger *zap.Logger) error {
	step, prior, err := l.deps.Ledger.LatestActions(ctx)
	if err != nil {
		return fatalf("read history", err)
	}
	if len(prior) == 0 {
		return nil
	}
	evals, err := l.deps.Oracles.Evaluator.Evaluate(ctx, prior, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("Evaluation oracle failed, keeping unevaluated history.", zap.Error(err))
		return nil
	}
	if err := l.deps.Ledger.ApplyEvaluations(ctx, step, evals); err != nil {
		return fatalf("apply evaluations", err)
	}
	return nil
}

func (l *Loop) reload(ctx context.Context) (*schemas.RunRecord, error) {
	run, err := l.deps.Store.Load(ctx)
	if err != nil {
		return nil, fatalf("load run", err)
	}
	if run == nil {
		return nil, fatalf("load run", store.ErrNoActiveRun)
	}
	return run, nil
}

func (l *Loop) saveScreenshot(step int, visual schemas.Visual, logger *zap.Logger) {
	if l.cfg.ScreenshotDir == "" {
		return
	}
	dir, err := config.ExpandPath(l.cfg.ScreenshotDir)
	if err == nil {
		err = os.MkdirAll(dir, 0o755)
	}
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, fmt.Sprintf("step-%d.png", step)), visual.Data, 0o644)
	}
	if err != nil {
		logger.Warn("Failed to save screenshot.", zap.Error(err))
	}
}

// fail handles an error that escaped an iteration. Cancellation of ctx ends
// the run as aborted and leaves the record in place so it can be resumed.
func (l *Loop) fail(ctx context.Context, err error) (schemas.ThinkingStateType, error) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		l.logger.Info("Run interrupted.", zap.Error(err))
		l.emit(schemas.ThinkingAborted)
		l.emit(schemas.ThinkingIdle)
		return schemas.ThinkingAborted, err
	}

	l.logger.Error("Run failed.", zap.Error(err))
	msg := err.Error()
	persistCtx := context.WithoutCancel(ctx)
	if _, serr := l.deps.Store.Save(persistCtx, schemas.RunPatch{Error: &msg}); serr != nil {
		l.logger.Error("Failed to persist run error.", zap.Error(serr))
	}
	l.deps.Notifier.Notify(persistCtx, Notice{Level: NoticeError, Code: ErrCodeRunFatal, Message: msg})
	state := l.finish(ctx, schemas.ThinkingError)

	var ae *Error
	if errors.As(err, &ae) && ae.Code == ErrCodeRunFatal {
		return state, ae
	}
	return state, fatalf("run", err)
}

// finish shows the terminal state for the display delay and returns to idle.
func (l *Loop) finish(ctx context.Context, state schemas.ThinkingStateType) schemas.ThinkingStateType {
	l.emit(state)
	_ = sleep(ctx, l.cfg.DisplayDelay)
	l.emit(schemas.ThinkingIdle)
	return state
}

func (l *Loop) emit(t schemas.ThinkingStateType) {
	l.deps.Sink.Emit(schemas.ThinkingState{Type: t})
}

// FilterActions applies the batch rules: a batch of exactly one done action
// passes through unchanged; otherwise done actions and actions whose index
// is -1 are dropped.
func FilterActions(actions []schemas.Action) []schemas.Action {
	if len(actions) == 1 && actions[0].Type == schemas.ActionDone {
		return actions
	}
	out := make([]schemas.Action, 0, len(actions))
	for _, a := range actions {
		if a.Type == schemas.ActionDone {
			continue
		}
		if a.Idx != nil && *a.Idx == schemas.NoIndex {
			continue
		}
		out = append(out, a)
	}
	return out
}

// unknownTypes lists the action types in actions that no handler serves.
func unknownTypes(actions []schemas.Action) []string {
	var out []string
	for _, a := range actions {
		if !a.Type.Known() {
			out = append(out, string(a.Type))
		}
	}
	return out
}

// OrderActions moves navigating actions after all others, keeping the
// relative order within each group.
func OrderActions(actions []schemas.Action) []schemas.Action {
	out := append([]schemas.Action(nil), actions...)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Navigates() && out[j].Navigates()
	})
	return out
}

// FoldClarification appends the user's answer to the intent.
func FoldClarification(intent, answer string) string {
	return fmt.Sprintf("%s\nUser clarification: %q", intent, answer)
}

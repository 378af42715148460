package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/store"
)

// Ledger owns the step-grouped history of the active run. Every mutation is
// a single store patch.
type Ledger struct {
	store  store.Store
	logger *zap.Logger
}

// NewLedger creates a ledger over s.
func NewLedger(s store.Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: s, logger: logger.Named("ledger")}
}

func (l *Ledger) load(ctx context.Context) (*schemas.RunRecord, error) {
	rec, err := l.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load run record: %w", err)
	}
	if rec == nil {
		return nil, store.ErrNoActiveRun
	}
	return rec, nil
}

// Append adds rec to the group of step. Groups past step are discarded, so a
// step that is retried starts from the history it saw.
func (l *Ledger) Append(ctx context.Context, step int, rec schemas.ActionRecord) error {
	run, err := l.load(ctx)
	if err != nil {
		return err
	}
	history := run.History
	if step < len(history) {
		history = history[:step+1]
	} else {
		for len(history) < step+1 {
			history = append(history, nil)
		}
	}
	history[step] = append(history[step], rec)

	if _, err := l.store.Save(ctx, schemas.RunPatch{History: &history}); err != nil {
		return fmt.Errorf("failed to append action record: %w", err)
	}
	return nil
}

// StepActions returns the records of step, or nil.
func (l *Ledger) StepActions(ctx context.Context, step int) ([]schemas.ActionRecord, error) {
	run, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	if step < 0 || step >= len(run.History) {
		return nil, nil
	}
	return run.History[step], nil
}

// LatestActions returns the records of the newest non-empty step.
func (l *Ledger) LatestActions(ctx context.Context) (int, []schemas.ActionRecord, error) {
	run, err := l.load(ctx)
	if err != nil {
		return 0, nil, err
	}
	for i := len(run.History) - 1; i >= 0; i-- {
		if len(run.History[i]) > 0 {
			return i, run.History[i], nil
		}
	}
	return -1, nil, nil
}

// ApplyEvaluations rewrites the summary and state of every record of step
// from the parallel evals. It is a no-op unless step is the newest group and
// the lengths agree. Clarify records are never rewritten.
func (l *Ledger) ApplyEvaluations(ctx context.Context, step int, evals []bool) error {
	run, err := l.load(ctx)
	if err != nil {
		return err
	}
	if step != len(run.History)-1 || step < 0 {
		l.logger.Debug("Evaluations target a stale step, skipping.", zap.Int("step", step), zap.Int("groups", len(run.History)))
		return nil
	}
	group := run.History[step]
	if len(evals) == 0 || len(evals) != len(group) {
		l.logger.Warn("Evaluation count does not match recorded actions, skipping.",
			zap.Int("evaluations", len(evals)), zap.Int("actions", len(group)))
		return nil
	}

	for i, ok := range evals {
		if group[i].Action.Type == schemas.ActionClarify {
			continue
		}
		group[i].Summary = Summarize(group[i], ok)
		if ok {
			group[i].State = schemas.StateSuccess
		} else {
			group[i].State = schemas.StateFailed
		}
	}
	history := run.History
	if _, err := l.store.Save(ctx, schemas.RunPatch{History: &history}); err != nil {
		return fmt.Errorf("failed to apply evaluations: %w", err)
	}
	return nil
}

// IncrStep advances the step counter and returns the new step.
func (l *Ledger) IncrStep(ctx context.Context) (int, error) {
	run, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	next := run.Step + 1
	if _, err := l.store.Save(ctx, schemas.RunPatch{Step: &next}); err != nil {
		return 0, fmt.Errorf("failed to advance step: %w", err)
	}
	return next, nil
}

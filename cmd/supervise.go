package cmd

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/store"
)

// runner is satisfied by *agent.Loop.
type runner interface {
	RunUntilCompletion(ctx context.Context) (schemas.ThinkingStateType, error)
}

// cursorSource is satisfied by *humanoid.Tracker.
type cursorSource interface {
	Snapshot() (schemas.CursorCoordinate, uint64)
}

// supervise runs the loop alongside a cursor persister that stops when the
// loop does.
func supervise(ctx context.Context, loop runner, st store.Store, cursor cursorSource, every time.Duration, logger *zap.Logger) (schemas.ThinkingStateType, error) {
	g, gctx := errgroup.WithContext(ctx)
	persistCtx, stopPersist := context.WithCancel(gctx)
	defer stopPersist()

	var state schemas.ThinkingStateType
	g.Go(func() error {
		defer stopPersist()
		var err error
		state, err = loop.RunUntilCompletion(gctx)
		return err
	})
	if every > 0 && cursor != nil {
		g.Go(func() error {
			persistCursor(persistCtx, st, cursor, every, logger)
			return nil
		})
	}

	err := g.Wait()
	return state, err
}

// persistCursor saves the cursor position whenever it changed since the last
// tick, so an observer attaching mid-run can pick up the animation.
func persistCursor(ctx context.Context, st store.Store, cursor cursorSource, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	_, last := cursor.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pos, version := cursor.Snapshot()
		if version == last {
			continue
		}
		if _, err := st.Save(ctx, schemas.RunPatch{CursorPosition: &pos}); err != nil {
			if errors.Is(err, store.ErrNoActiveRun) || ctx.Err() != nil {
				logger.Debug("Skipped cursor persist.", zap.Error(err))
			} else {
				logger.Warn("Failed to persist cursor position.", zap.Error(err))
			}
			continue
		}
		last = version
	}
}

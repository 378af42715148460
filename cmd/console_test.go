package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/agent"
	"github.com/xkilldash9x/surfer/internal/store"
)

func TestConsoleClarifier(t *testing.T) {
	var out bytes.Buffer
	c := newConsoleClarifier(strings.NewReader("  size 9 \nnext\n"), &out)

	answer, err := c.AskUser(context.Background(), "Which size?")
	require.NoError(t, err)
	assert.Equal(t, "size 9", answer)
	assert.Contains(t, out.String(), "? Which size?")

	answer, err = c.AskUser(context.Background(), "Anything else?")
	require.NoError(t, err)
	assert.Equal(t, "next", answer)

	_, err = c.AskUser(context.Background(), "Still there?")
	assert.ErrorIs(t, err, io.EOF)
}

func TestConsoleClarifier_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	c := newConsoleClarifier(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.AskUser(ctx, "Which size?")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// Unblock the pending read.
	require.NoError(t, w.Close())
}

func TestConsoleNotifier(t *testing.T) {
	var out bytes.Buffer
	n := &consoleNotifier{out: &out}
	n.Notify(context.Background(), agent.Notice{Level: agent.NoticeWarn, Code: agent.ErrCodeElementNotFound, Message: "gone"})
	n.Notify(context.Background(), agent.Notice{Level: agent.NoticeInfo, Message: "done"})
	assert.Equal(t, "[warn] gone (ELEMENT_NOT_FOUND)\n[info] done\n", out.String())
}

func TestConsoleSink(t *testing.T) {
	var out bytes.Buffer
	s := &consoleSink{out: &out}
	click := schemas.NewClick(3, "Submit")
	s.Emit(schemas.ThinkingState{Type: schemas.ThinkingDecidingAction})
	s.Emit(schemas.ThinkingState{Type: schemas.ThinkingAction, Action: &click})
	s.Emit(schemas.ThinkingState{Type: schemas.ThinkingIdle})
	assert.Equal(t, "· deciding action\n  click: clicking \"Submit\"...\n", out.String())
}

func TestSignalTakeover(t *testing.T) {
	signals := make(chan os.Signal, 1)
	tk := &signalTakeover{signals: signals, out: io.Discard}

	assert.False(t, tk.Requested())
	signals <- syscall.SIGUSR1
	assert.True(t, tk.Requested())
	assert.False(t, tk.Requested(), "a signal is consumed once")

	signals <- syscall.SIGUSR1
	require.NoError(t, tk.Await(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tk.Await(ctx), context.Canceled)
}

// fakeCursorSource is a cursor whose version bumps on every move.
type fakeCursorSource struct {
	mu      sync.Mutex
	pos     schemas.CursorCoordinate
	version uint64
}

func (f *fakeCursorSource) Snapshot() (schemas.CursorCoordinate, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, f.version
}

func (f *fakeCursorSource) move(x, y float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = schemas.CursorCoordinate{X: x, Y: y}
	f.version++
}

type funcRunner func(ctx context.Context) (schemas.ThinkingStateType, error)

func (f funcRunner) RunUntilCompletion(ctx context.Context) (schemas.ThinkingStateType, error) {
	return f(ctx)
}

func TestSupervise(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Create(ctx, schemas.RunRecord{UserIntent: "x"}))
	cursor := &fakeCursorSource{}

	loop := funcRunner(func(ctx context.Context) (schemas.ThinkingStateType, error) {
		cursor.move(120, 80)
		assert.Eventually(t, func() bool {
			rec, err := mem.Load(ctx)
			return err == nil && rec.CursorPosition == schemas.CursorCoordinate{X: 120, Y: 80}
		}, time.Second, 5*time.Millisecond)
		return schemas.ThinkingDone, nil
	})

	state, err := supervise(ctx, loop, mem, cursor, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, schemas.ThinkingDone, state)
}

func TestSupervise_LoopErrorStopsPersister(t *testing.T) {
	defer goleak.VerifyNone(t)
	boom := &agent.Error{Code: agent.ErrCodeRunFatal, Op: "capture visual", Err: io.ErrUnexpectedEOF}
	loop := funcRunner(func(context.Context) (schemas.ThinkingStateType, error) {
		return schemas.ThinkingError, boom
	})

	state, err := supervise(context.Background(), loop, store.NewMemory(), &fakeCursorSource{}, time.Millisecond, zap.NewNop())
	assert.Equal(t, schemas.ThinkingError, state)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, agent.ErrCodeRunFatal, agent.CodeOf(err))
}

func TestPersistCursor_NoActiveRun(t *testing.T) {
	defer goleak.VerifyNone(t)
	cursor := &fakeCursorSource{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	moved := time.AfterFunc(2*time.Millisecond, func() { cursor.move(1, 1) })
	defer moved.Stop()

	// Returns once ctx is done even though every save fails.
	persistCursor(ctx, store.NewMemory(), cursor, time.Millisecond, zap.NewNop())
}

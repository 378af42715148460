package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
)

// TabController drives the browser tab the agent works in.
type TabController interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	Back(ctx context.Context) error
	CaptureVisual(ctx context.Context) (schemas.Visual, error)
	URL(ctx context.Context) (string, error)
	Snapshot(ctx context.Context) (*dom.Document, error)
}

// Cursor moves the visual cursor and types into elements.
type Cursor interface {
	MoveTo(ctx context.Context, selector string) (humanoid.MoveResult, error)
	Type(ctx context.Context, selector, text string) error
	SubmitForm(ctx context.Context, selector string) error
}

// Clarifier asks the user a question and waits for the answer.
type Clarifier interface {
	AskUser(ctx context.Context, question string) (string, error)
}

// OverlayBlur dims the page while the user is being asked something.
type OverlayBlur interface {
	Blur(ctx context.Context) error
	Unblur(ctx context.Context) error
}

// Takeover lets the user pause the agent between actions.
type Takeover interface {
	// Requested reports whether the user asked for control.
	Requested() bool
	// Await blocks until the user hands control back.
	Await(ctx context.Context) error
}

// StateSink observes the loop's thinking state.
type StateSink interface {
	Emit(state schemas.ThinkingState)
}

// NoticeLevel grades a user-facing notification.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a message for the user.
type Notice struct {
	Level   NoticeLevel
	Code    ErrorCode
	Message string
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// -- defaults for unattached hooks --

type nopOverlay struct{}

func (nopOverlay) Blur(context.Context) error   { return nil }
func (nopOverlay) Unblur(context.Context) error { return nil }

type neverTakeover struct{}

func (neverTakeover) Requested() bool             { return false }
func (neverTakeover) Await(context.Context) error { return nil }

// logSink writes state transitions to the log.
type logSink struct{ logger *zap.Logger }

func (s logSink) Emit(state schemas.ThinkingState) {
	fields := []zap.Field{zap.String("state", string(state.Type))}
	if state.Action != nil {
		fields = append(fields, zap.String("action", string(state.Action.Type)))
	}
	s.logger.Debug("Thinking state changed.", fields...)
}

// logNotifier writes notices to the log.
type logNotifier struct{ logger *zap.Logger }

func (n logNotifier) Notify(_ context.Context, notice Notice) {
	fields := []zap.Field{zap.String("code", string(notice.Code))}
	switch notice.Level {
	case NoticeError:
		n.logger.Error(notice.Message, fields...)
	case NoticeWarn:
		n.logger.Warn(notice.Message, fields...)
	default:
		n.logger.Info(notice.Message, fields...)
	}
}

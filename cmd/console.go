package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/agent"
)

// consoleClarifier answers clarify actions from a line of input.
type consoleClarifier struct {
	out     io.Writer
	scanner *bufio.Scanner
}

func newConsoleClarifier(in io.Reader, out io.Writer) *consoleClarifier {
	return &consoleClarifier{out: out, scanner: bufio.NewScanner(in)}
}

func (c *consoleClarifier) AskUser(ctx context.Context, question string) (string, error) {
	fmt.Fprintf(c.out, "\n? %s\n> ", question)

	type line struct {
		text string
		err  error
	}
	ch := make(chan line, 1)
	go func() {
		if c.scanner.Scan() {
			ch <- line{text: c.scanner.Text()}
			return
		}
		err := c.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		ch <- line{err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-ch:
		if l.err != nil {
			return "", fmt.Errorf("failed to read answer: %w", l.err)
		}
		return strings.TrimSpace(l.text), nil
	}
}

// consoleNotifier prints notices as single lines.
type consoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *consoleNotifier) Notify(_ context.Context, notice agent.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if notice.Code != "" {
		fmt.Fprintf(n.out, "[%s] %s (%s)\n", notice.Level, notice.Message, notice.Code)
		return
	}
	fmt.Fprintf(n.out, "[%s] %s\n", notice.Level, notice.Message)
}

// consoleSink prints the loop's state transitions.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *consoleSink) Emit(state schemas.ThinkingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.Action != nil {
		fmt.Fprintf(s.out, "  %s: %s\n", state.Action.Type, agent.Describe(*state.Action))
		return
	}
	if state.Type == schemas.ThinkingIdle {
		return
	}
	fmt.Fprintf(s.out, "· %s\n", strings.ReplaceAll(string(state.Type), "_", " "))
}

// signalTakeover is raised by a signal. The first signal asks for control,
// the next one hands it back.
type signalTakeover struct {
	signals <-chan os.Signal
	out     io.Writer
}

func (t *signalTakeover) Requested() bool {
	select {
	case <-t.signals:
		return true
	default:
		return false
	}
}

func (t *signalTakeover) Await(ctx context.Context) error {
	fmt.Fprintln(t.out, "Paused. Send the signal again to resume.")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.signals:
		fmt.Fprintln(t.out, "Resuming.")
		return nil
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/agent"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
	"github.com/xkilldash9x/surfer/internal/browser/session"
	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/observability"
	"github.com/xkilldash9x/surfer/internal/oracle"
	"github.com/xkilldash9x/surfer/internal/store"
)

// openStore is swapped out in tests.
var openStore = store.Open

func addAgentFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-steps", 0, "step budget before asking for assistance")
	cmd.Flags().Bool("evaluate", false, "grade the previous step before each decision")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().String("provider", "", "decision oracle: http or gemini")
	cmd.Flags().String("screenshots", "", "directory to keep a screenshot of every step in")
}

func newRunCmd() *cobra.Command {
	var startURL string
	cmd := &cobra.Command{
		Use:   "run [intent...]",
		Short: "Starts a new run toward the given task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			intent := strings.TrimSpace(strings.Join(args, " "))
			if intent == "" {
				return errors.New("intent must not be empty")
			}
			start := func(ctx context.Context, st store.Store, logger *zap.Logger) (*schemas.RunRecord, error) {
				if prev, err := st.Load(ctx); err == nil && prev != nil {
					logger.Warn("Replacing the active run.", zap.String("working_context_id", prev.WorkingContextID))
				}
				rec := schemas.RunRecord{WorkingContextID: uuid.NewString(), UserIntent: intent}
				if err := st.Create(ctx, rec); err != nil {
					return nil, fmt.Errorf("failed to create run: %w", err)
				}
				return &rec, nil
			}
			return runAgent(cmd, cfg, startURL, start)
		},
	}
	cmd.Flags().StringVar(&startURL, "url", "", "page to open before the first step")
	addAgentFlags(cmd)
	return cmd
}

func newResumeCmd() *cobra.Command {
	var startURL string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continues the active run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			start := func(ctx context.Context, st store.Store, _ *zap.Logger) (*schemas.RunRecord, error) {
				rec, err := st.Load(ctx)
				if err != nil {
					return nil, fmt.Errorf("failed to load run: %w", err)
				}
				if rec == nil {
					return nil, fmt.Errorf("no active run for key %q", cfg.Store().RunKey)
				}
				return rec, nil
			}
			return runAgent(cmd, cfg, startURL, start)
		},
	}
	cmd.Flags().StringVar(&startURL, "url", "", "page to open before resuming")
	addAgentFlags(cmd)
	return cmd
}

type startFunc func(ctx context.Context, st store.Store, logger *zap.Logger) (*schemas.RunRecord, error)

// runAgent wires the browser, cursor, oracles and store into a loop and
// runs it to a terminal state.
func runAgent(cmd *cobra.Command, cfg *config.Config, startURL string, start startFunc) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	logger := observability.GetLogger()

	st, closeStore, err := openStore(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer closeStore()

	rec, err := start(ctx, st, logger)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("working_context_id", rec.WorkingContextID))
	if router := interruptRouterFrom(ctx); router != nil {
		defer router.Handle(gracefulAbort(ctx, st, out, logger))()
	}

	oracles, err := oracle.NewSet(ctx, cfg.Oracle(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize oracles: %w", err)
	}

	sess, err := session.New(ctx, cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}()
	if startURL != "" {
		if err := sess.Navigate(ctx, startURL); err != nil {
			return fmt.Errorf("failed to open %s: %w", startURL, err)
		}
	}

	overlay := session.NewOverlay(sess, time.Duration(cfg.Cursor().ClickVisualMs)*time.Millisecond)
	tracker := humanoid.NewTracker()
	tracker.Restore(rec.CursorPosition)
	cursor := humanoid.New(cfg.Cursor(), logger, sess.Executor(),
		humanoid.WithTracker(tracker),
		humanoid.WithVisualizer(overlay),
		humanoid.WithOverlay(overlay),
		humanoid.WithInterrupts(sess),
	)

	notifier := &consoleNotifier{out: out}
	execOpts := []agent.ExecutorOption{
		agent.WithClarifier(newConsoleClarifier(cmd.InOrStdin(), out)),
		agent.WithOverlay(overlay),
		agent.WithNotifier(notifier),
	}
	if oracles.Estimator != nil {
		execOpts = append(execOpts, agent.WithEstimator(oracles.Estimator))
	}
	executor := agent.NewExecutor(cfg.Agent(), sess, cursor, logger, execOpts...)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	defer signal.Stop(signals)

	loop := agent.NewLoop(cfg.Agent(), agent.Deps{
		Store:    st,
		Tabs:     sess,
		Executor: executor,
		Oracles:  *oracles,
		Policy:   agent.NewSitePolicy(cfg.Sites()),
		Sink:     &consoleSink{out: out},
		Notifier: notifier,
		Takeover: &signalTakeover{signals: signals, out: out},
	}, logger)

	fmt.Fprintf(out, "Working on: %s (send SIGUSR1 to pid %d to take over, Ctrl+C to stop)\n", rec.UserIntent, os.Getpid())
	state, err := supervise(ctx, loop, st, tracker, cfg.Agent().CursorPersist, logger)
	fmt.Fprintf(out, "Run finished: %s\n", state)
	return err
}

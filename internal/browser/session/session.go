// internal/browser/session/session.go
package session

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
	"github.com/xkilldash9x/surfer/internal/config"
)

const interruptBuffer = 8

// Session is a single browser tab driven over CDP. It is the agent's tab
// controller and the cursor controller's executor.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	executor   *cdpExecutor
	interrupts chan string
	closeOnce  sync.Once
}

// New launches a browser and opens a tab in it.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))

	s := &Session{
		id:          id,
		cfg:         cfg,
		logger:      log,
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      tabCancel,
		interrupts:  make(chan string, interruptBuffer),
	}
	s.executor = &cdpExecutor{
		logger:         log,
		timeout:        cfg.ActionTimeout,
		runActionsFunc: s.RunActions,
	}

	startCtx, cancelStart := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelStart()
	if err := chromedp.Run(startCtx, runtime.Enable(), page.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("session: browser failed to start or respond: %w", err)
	}

	chromedp.ListenTarget(tabCtx, s.onEvent)
	log.Info("Browser tab ready.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// allocatorOptions assembles the launch flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
	)
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		if dir, err := config.ExpandPath(cfg.UserDataDir); err == nil {
			opts = append(opts, chromedp.UserDataDir(dir))
		}
	}
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if goruntime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// onEvent turns page exceptions and main frame navigations into interrupts.
func (s *Session) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventExceptionThrown:
		text := "uncaught exception"
		if e.ExceptionDetails != nil {
			text = e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				text = e.ExceptionDetails.Exception.Description
			}
		}
		s.interrupt("exception: " + text)
	case *page.EventFrameNavigated:
		if e.Frame != nil && e.Frame.ParentID == "" {
			s.interrupt("navigated to " + e.Frame.URL)
		}
	}
}

// interrupt never blocks the CDP event loop. Reasons beyond the buffer are
// dropped.
func (s *Session) interrupt(reason string) {
	select {
	case s.interrupts <- reason:
	default:
	}
}

// Interrupts implements humanoid.InterruptSource.
func (s *Session) Interrupts() <-chan string {
	return s.interrupts
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Executor returns the cursor controller's view of this tab.
func (s *Session) Executor() humanoid.Executor { return s.executor }

// RunActions runs chromedp actions on the tab, bounded by ctx.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) navigationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.NavigationTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	}
	return context.WithCancel(ctx)
}

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := s.navigationContext(ctx)
	defer cancel()
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("session: failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	navCtx, cancel := s.navigationContext(ctx)
	defer cancel()
	if err := s.RunActions(navCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("session: failed to reload: %w", err)
	}
	return nil
}

// Back goes one entry back in the tab history.
func (s *Session) Back(ctx context.Context) error {
	navCtx, cancel := s.navigationContext(ctx)
	defer cancel()
	if err := s.RunActions(navCtx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("session: failed to go back: %w", err)
	}
	return nil
}

// URL returns the address of the current page.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.RunActions(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("session: failed to read location: %w", err)
	}
	return loc, nil
}

// CaptureVisual takes a PNG of the visible viewport.
func (s *Session) CaptureVisual(ctx context.Context) (schemas.Visual, error) {
	var buf []byte
	if err := s.RunActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return schemas.Visual{}, fmt.Errorf("session: failed to capture screenshot: %w", err)
	}
	return schemas.Visual{OK: len(buf) > 0, Data: buf}, nil
}

// Snapshot captures the rendered DOM of the page and its frames.
func (s *Session) Snapshot(ctx context.Context) (*dom.Document, error) {
	var doc *dom.Document
	err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		docs, strs, err := captureSnapshot(ctx)
		if err != nil {
			return err
		}
		doc, err = fromSnapshot(docs, strs)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("session: failed to snapshot DOM: %w", err)
	}
	return doc, nil
}

// Close shuts the tab and the browser. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(Detach(s.ctx), 5*time.Second)
		defer cancel()
		if cerr := chromedp.Cancel(closeCtx); cerr != nil && ctx.Err() == nil {
			err = fmt.Errorf("session: failed to close tab: %w", cerr)
		}
		s.cancel()
		s.allocCancel()
		s.logger.Debug("Session closed.")
	})
	return err
}

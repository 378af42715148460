package agent

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
	"github.com/xkilldash9x/surfer/internal/browser/dom"
	"github.com/xkilldash9x/surfer/internal/browser/humanoid"
	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/oracle"
	"github.com/xkilldash9x/surfer/internal/store"
)

// submitPage parses to html(0) head(1) body(2) button(3).
const submitPage = `<html><head></head><body><button>Submit</button></body></html>`

// formPage parses to html(0) head(1) body(2) div(3) div(4) div(5) form(6)
// input(7) button(8).
const formPage = `<html><head></head><body><div><div><div><form>` +
	`<input type="text" placeholder="Message"><button>Send</button>` +
	`</form></div></div></div></body></html>`

// laidOut parses markup and gives a 100x20 box to every element matching one
// of the selectors, stacked vertically. Everything else is unrendered.
func laidOut(t *testing.T, markup string, selectors ...string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup), "https://shop.example/")
	require.NoError(t, err)
	y := 0.0
	root := goquery.NewDocumentFromNode(doc.Root)
	for _, sel := range selectors {
		root.Find(sel).Each(func(_ int, s *goquery.Selection) {
			doc.SetBox(s.Get(0), dom.Rect{X: 0, Y: y, Width: 100, Height: 20})
			y += 20
		})
	}
	return doc
}

// -- Tab control --

type fakeTabs struct {
	mu        sync.Mutex
	doc       *dom.Document
	url       string
	visual    schemas.Visual
	visualErr error
	navErr    error
	navigated []string
	refreshes int
	backs     int
	events    *[]string
}

func newFakeTabs(doc *dom.Document) *fakeTabs {
	return &fakeTabs{
		doc:    doc,
		url:    "https://shop.example/",
		visual: schemas.Visual{OK: true, Data: []byte("png")},
	}
}

func (f *fakeTabs) record(ev string) {
	if f.events != nil {
		*f.events = append(*f.events, ev)
	}
}

func (f *fakeTabs) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	f.record("navigate " + url)
	return f.navErr
}

func (f *fakeTabs) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.record("refresh")
	return nil
}

func (f *fakeTabs) Back(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backs++
	f.record("back")
	return nil
}

func (f *fakeTabs) CaptureVisual(context.Context) (schemas.Visual, error) {
	return f.visual, f.visualErr
}

func (f *fakeTabs) URL(context.Context) (string, error) { return f.url, nil }

func (f *fakeTabs) Snapshot(context.Context) (*dom.Document, error) { return f.doc, nil }

// -- Cursor --

type fakeCursor struct {
	mu        sync.Mutex
	moves     []string
	typed     map[string]string
	submitted []string
	missing   bool
	moveErr   error
	typeErr   error
	events    *[]string
}

func newFakeCursor() *fakeCursor {
	return &fakeCursor{typed: make(map[string]string)}
}

func (f *fakeCursor) MoveTo(_ context.Context, selector string) (humanoid.MoveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, selector)
	if f.events != nil {
		*f.events = append(*f.events, "move "+selector)
	}
	if f.moveErr != nil {
		return humanoid.MoveResult{}, f.moveErr
	}
	if f.missing {
		return humanoid.MoveResult{}, nil
	}
	return humanoid.MoveResult{OK: true, Element: &humanoid.ElementInfo{Selector: selector}}, nil
}

func (f *fakeCursor) Type(_ context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed[selector] += text
	return f.typeErr
}

func (f *fakeCursor) SubmitForm(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, selector)
	return nil
}

// -- Oracles --

// scriptedDecider replies with replies[i] on call i, repeating the last one.
type scriptedDecider struct {
	mu       sync.Mutex
	requests []oracle.Request
	replies  []func(oracle.Request) (oracle.Response, error)
}

func (d *scriptedDecider) Decide(_ context.Context, req oracle.Request) (oracle.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	req.History = schemas.CloneHistory(req.History)
	d.requests = append(d.requests, req)
	i := len(d.requests) - 1
	if i >= len(d.replies) {
		i = len(d.replies) - 1
	}
	return d.replies[i](req)
}

func (d *scriptedDecider) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
}

func reply(actions ...schemas.Action) func(oracle.Request) (oracle.Response, error) {
	return func(oracle.Request) (oracle.Response, error) {
		return oracle.Response{Actions: actions}, nil
	}
}

func replyErr(err error) func(oracle.Request) (oracle.Response, error) {
	return func(oracle.Request) (oracle.Response, error) {
		return oracle.Response{}, err
	}
}

type fakeEvaluator struct {
	mu     sync.Mutex
	prior  [][]schemas.ActionRecord
	result func(prior []schemas.ActionRecord) []bool
}

func (f *fakeEvaluator) Evaluate(_ context.Context, prior []schemas.ActionRecord, _ []schemas.CandidateElement) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prior = append(f.prior, prior)
	return f.result(prior), nil
}

type fakeEstimator struct {
	at schemas.CursorCoordinate
	ok bool
}

func (f fakeEstimator) Estimate(context.Context, string, schemas.Visual) (schemas.CursorCoordinate, bool, error) {
	return f.at, f.ok, nil
}

// -- Hooks --

type recordingSink struct {
	mu     sync.Mutex
	states []schemas.ThinkingState
}

func (r *recordingSink) Emit(s schemas.ThinkingState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingSink) types() []schemas.ThinkingStateType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.ThinkingStateType, len(r.states))
	for i, s := range r.states {
		out[i] = s.Type
	}
	return out
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) codes() []ErrorCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ErrorCode
	for _, n := range r.notices {
		if n.Code != "" {
			out = append(out, n.Code)
		}
	}
	return out
}

type fakeTakeover struct {
	mu        sync.Mutex
	requested bool
	awaited   int
}

func (f *fakeTakeover) Requested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requested
}

func (f *fakeTakeover) Await(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaited++
	f.requested = false
	return nil
}

// requestAfterFirstMove raises the takeover flag once the cursor has moved.
type requestAfterFirstMove struct {
	*fakeTakeover
	cursor *fakeCursor
}

func (r requestAfterFirstMove) Requested() bool {
	r.cursor.mu.Lock()
	moved := len(r.cursor.moves) > 0
	r.cursor.mu.Unlock()
	if moved && r.awaited == 0 {
		r.fakeTakeover.mu.Lock()
		r.fakeTakeover.requested = true
		r.fakeTakeover.mu.Unlock()
	}
	return r.fakeTakeover.Requested()
}

type fakeClarifier struct {
	answer    string
	questions []string
}

func (f *fakeClarifier) AskUser(_ context.Context, q string) (string, error) {
	f.questions = append(f.questions, q)
	return f.answer, nil
}

type countingOverlay struct {
	blurs, unblurs int
}

func (c *countingOverlay) Blur(context.Context) error   { c.blurs++; return nil }
func (c *countingOverlay) Unblur(context.Context) error { c.unblurs++; return nil }

// -- Harness --

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:       3,
		CaptureVisual:  true,
		FallbackRadius: 50,
	}
}

type harness struct {
	store    *store.Memory
	tabs     *fakeTabs
	cursor   *fakeCursor
	decider  *scriptedDecider
	sink     *recordingSink
	notifier *recordingNotifier
	cfg      config.AgentConfig
	sites    []config.SiteConfig
	oracles  oracle.Set
	takeover Takeover
	execOpts []ExecutorOption
}

func newHarness(t *testing.T, doc *dom.Document, replies ...func(oracle.Request) (oracle.Response, error)) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemory(),
		tabs:     newFakeTabs(doc),
		cursor:   newFakeCursor(),
		decider:  &scriptedDecider{replies: replies},
		sink:     &recordingSink{},
		notifier: &recordingNotifier{},
		cfg:      testAgentConfig(),
	}
	h.oracles.Decider = h.decider
	require.NoError(t, h.store.Create(context.Background(), schemas.RunRecord{
		WorkingContextID: "wc-1",
		UserIntent:       "click the Submit button",
	}))
	return h
}

func (h *harness) loop() *Loop {
	logger := zap.NewNop()
	opts := append([]ExecutorOption{WithNotifier(h.notifier)}, h.execOpts...)
	exec := NewExecutor(h.cfg, h.tabs, h.cursor, logger, opts...)
	return NewLoop(h.cfg, Deps{
		Store:    h.store,
		Tabs:     h.tabs,
		Executor: exec,
		Oracles:  h.oracles,
		Policy:   NewSitePolicy(h.sites),
		Sink:     h.sink,
		Notifier: h.notifier,
		Takeover: h.takeover,
	}, logger)
}

func (h *harness) run(t *testing.T) *schemas.RunRecord {
	t.Helper()
	rec, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return rec
}

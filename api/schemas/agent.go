package schemas

// CandidateElement is one interactive page node, minified for the decision oracle.
// It is only valid for the iteration that produced it.
type CandidateElement struct {
	Tag   string        `json:"tag"`
	ID    string        `json:"id"`
	Topic string        `json:"topic"`
	Idx   int           `json:"idx"`
	Meta  CandidateMeta `json:"meta"`
}

// CandidateMeta carries data the oracle never sees. QuerySelector is relative
// to the document the element lives in, which is a frame when InFrame is set.
type CandidateMeta struct {
	QuerySelector string `json:"querySelector"`
	InFrame       bool   `json:"inFrame,omitempty"`
}

// ActionType enumerates the semantic actions an oracle may return.
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionClarify  ActionType = "clarify"
	ActionClick    ActionType = "click"
	ActionInput    ActionType = "input"
	ActionRefresh  ActionType = "refresh"
	ActionBack     ActionType = "back"
	ActionDone     ActionType = "done"
)

// Known reports whether t is one of the action types the executor handles.
func (t ActionType) Known() bool {
	switch t {
	case ActionNavigate, ActionClarify, ActionClick, ActionInput, ActionRefresh, ActionBack, ActionDone:
		return true
	default:
		return false
	}
}

// NoIndex marks an action that has no associated candidate.
const NoIndex = -1

// Action is a tagged variant. Only the fields belonging to Type are meaningful.
type Action struct {
	Type        ActionType `json:"type"`
	URL         string     `json:"url,omitempty"`         // navigate
	Idx         *int       `json:"idx,omitempty"`         // click, input
	Question    string     `json:"question,omitempty"`    // clarify
	Description string     `json:"description,omitempty"` // click
	Content     string     `json:"content,omitempty"`     // input
	WithSubmit  bool       `json:"withSubmit,omitempty"`  // input
	Explanation string     `json:"explanation,omitempty"` // done
}

// Index returns the candidate index of the action, or NoIndex.
func (a Action) Index() int {
	if a.Idx == nil {
		return NoIndex
	}
	return *a.Idx
}

// Navigates reports whether running the action may tear down the current page.
func (a Action) Navigates() bool {
	switch a.Type {
	case ActionNavigate, ActionRefresh, ActionBack:
		return true
	default:
		return false
	}
}

// IntPtr is a convenience for building actions with an index.
func IntPtr(i int) *int { return &i }

// NewNavigate, NewClick and friends build well-formed variants.
func NewNavigate(url string) Action { return Action{Type: ActionNavigate, URL: url} }
func NewClarify(question string) Action {
	return Action{Type: ActionClarify, Question: question}
}
func NewClick(idx int, description string) Action {
	return Action{Type: ActionClick, Idx: IntPtr(idx), Description: description}
}
func NewInput(idx int, content string, withSubmit bool) Action {
	return Action{Type: ActionInput, Idx: IntPtr(idx), Content: content, WithSubmit: withSubmit}
}
func NewRefresh() Action { return Action{Type: ActionRefresh} }
func NewBack() Action    { return Action{Type: ActionBack} }
func NewDone(explanation string) Action {
	return Action{Type: ActionDone, Explanation: explanation}
}

// ActionState tracks the outcome of an attempted action.
type ActionState string

const (
	StateInProgress ActionState = "IN_PROGRESS"
	StateSuccess    ActionState = "SUCCESS"
	StateFailed     ActionState = "FAILED"
)

// ActionRecord is one history entry.
type ActionRecord struct {
	Action        Action      `json:"action"`
	QuerySelector string      `json:"querySelector"`
	Summary       string      `json:"summary"`
	State         ActionState `json:"state"`
}

// ThinkingStateType names the phases of the run loop.
type ThinkingStateType string

const (
	ThinkingIdle              ThinkingStateType = "idle"
	ThinkingAwaitingUIChanges ThinkingStateType = "awaiting_ui_changes"
	ThinkingDecidingAction    ThinkingStateType = "deciding_action"
	ThinkingAction            ThinkingStateType = "action"
	ThinkingClickingButton    ThinkingStateType = "clicking_button"
	ThinkingRequireAssistance ThinkingStateType = "require_assistance"
	ThinkingAborted           ThinkingStateType = "aborted"
	ThinkingDone              ThinkingStateType = "done"
	ThinkingError             ThinkingStateType = "error"
)

// ThinkingState is the observable state of the run loop. Action is set only
// for the "action" phase.
type ThinkingState struct {
	Type   ThinkingStateType `json:"type"`
	Action *Action           `json:"action,omitempty"`
}

// Terminal reports whether the state ends a run.
func (s ThinkingState) Terminal() bool {
	switch s.Type {
	case ThinkingRequireAssistance, ThinkingAborted, ThinkingDone, ThinkingError:
		return true
	default:
		return false
	}
}

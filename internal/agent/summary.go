package agent

import (
	"fmt"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// Describe is the in-progress summary shown while an action runs and stored
// until the action is evaluated.
func Describe(a schemas.Action) string {
	switch a.Type {
	case schemas.ActionNavigate:
		return fmt.Sprintf("navigating to %s...", a.URL)
	case schemas.ActionClarify:
		return a.Question
	case schemas.ActionClick:
		return fmt.Sprintf("clicking %q...", a.Description)
	case schemas.ActionInput:
		return fmt.Sprintf("typing %s...", a.Content)
	case schemas.ActionRefresh:
		return "refreshing page"
	case schemas.ActionBack:
		return "going back"
	case schemas.ActionDone:
		return a.Explanation
	default:
		return string(a.Type)
	}
}

// Summarize is the evaluated summary of a record.
func Summarize(rec schemas.ActionRecord, success bool) string {
	a := rec.Action
	var s string
	switch a.Type {
	case schemas.ActionNavigate:
		s = "Attempt navigate to " + a.URL
	case schemas.ActionClick:
		s = fmt.Sprintf("Attempt click on %q", a.Description)
	case schemas.ActionInput:
		s = fmt.Sprintf("Attempt enter %q into %s", a.Content, rec.QuerySelector)
	case schemas.ActionRefresh:
		s = "Attempt refresh the page"
	case schemas.ActionBack:
		s = "Attempt go back to the previous page"
	case schemas.ActionDone:
		s = "Task completed"
	default:
		s = Describe(a)
	}
	if !success {
		s += " (failed)"
	}
	return s
}

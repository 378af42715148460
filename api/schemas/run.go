package schemas

import "time"

// RunRecord is the persisted state of the active run.
type RunRecord struct {
	WorkingContextID string           `json:"workingContextId"`
	Step             int              `json:"step"`
	UserIntent       string           `json:"userIntent"`
	History          [][]ActionRecord `json:"history"`
	CursorPosition   CursorCoordinate `json:"cursorPosition"`
	Error            string           `json:"error,omitempty"`
	Abort            bool             `json:"abort"`
	Version          int64            `json:"-"`
	UpdatedAt        time.Time        `json:"-"`
}

// RunPatch is a partial update of a RunRecord. Nil fields are left untouched.
type RunPatch struct {
	Step           *int              `json:"step,omitempty"`
	UserIntent     *string           `json:"userIntent,omitempty"`
	History        *[][]ActionRecord `json:"history,omitempty"`
	CursorPosition *CursorCoordinate `json:"cursorPosition,omitempty"`
	Error          *string           `json:"error,omitempty"`
	Abort          *bool             `json:"abort,omitempty"`
}

// Apply merges the patch into rec.
func (p RunPatch) Apply(rec *RunRecord) {
	if p.Step != nil {
		rec.Step = *p.Step
	}
	if p.UserIntent != nil {
		rec.UserIntent = *p.UserIntent
	}
	if p.History != nil {
		rec.History = CloneHistory(*p.History)
	}
	if p.CursorPosition != nil {
		rec.CursorPosition = *p.CursorPosition
	}
	if p.Error != nil {
		rec.Error = *p.Error
	}
	if p.Abort != nil {
		rec.Abort = *p.Abort
	}
}

// Clone returns a deep copy of the record.
func (r RunRecord) Clone() RunRecord {
	r.History = CloneHistory(r.History)
	return r
}

// CloneHistory deep-copies a step-grouped history.
func CloneHistory(h [][]ActionRecord) [][]ActionRecord {
	if h == nil {
		return nil
	}
	out := make([][]ActionRecord, len(h))
	for i, step := range h {
		out[i] = append([]ActionRecord(nil), step...)
	}
	return out
}

// PageOptions is the per-site policy applied to a page.
type PageOptions struct {
	Href                     string `json:"href"`
	Hostname                 string `json:"hostname"`
	IncludeIDInQuerySelector bool   `json:"includeIdInQuerySelector"`
	UseWithSubmit            bool   `json:"useWithSubmit"`
}

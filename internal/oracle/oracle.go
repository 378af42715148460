// Package oracle talks to the services that decide which action the agent
// takes next and grade the actions it already took.
package oracle

import (
	"context"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// Request is everything the decision oracle sees for one iteration.
type Request struct {
	Intent     string
	Candidates []schemas.CandidateElement
	History    [][]schemas.ActionRecord
	URL        string
}

// Response is the batch of actions chosen for one iteration.
type Response struct {
	Actions []schemas.Action `json:"actions"`
}

// Decider picks the next batch of actions.
type Decider interface {
	Decide(ctx context.Context, req Request) (Response, error)
}

// Evaluator grades the actions of the latest step against the current page.
// The result is parallel to prior.
type Evaluator interface {
	Evaluate(ctx context.Context, prior []schemas.ActionRecord, candidates []schemas.CandidateElement) ([]bool, error)
}

// Estimator guesses the viewport position of a described element from a
// screenshot. ok is false when the estimator declined to answer.
type Estimator interface {
	Estimate(ctx context.Context, description string, visual schemas.Visual) (at schemas.CursorCoordinate, ok bool, err error)
}

// Set bundles the oracles a run uses. Estimator may be nil.
type Set struct {
	Decider   Decider
	Evaluator Evaluator
	Estimator Estimator
}

type evaluateResponse struct {
	Evaluation []bool `json:"evaluation"`
}

type estimateResponse struct {
	OK        bool    `json:"ok"`
	XEstimate float64 `json:"xEstimate"`
	YEstimate float64 `json:"yEstimate"`
}

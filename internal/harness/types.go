package harness

import "github.com/roach88/cellgram/internal/engine"

// Result is the outcome of a scenario run.
type Result struct {
	// Passed is true when every assertion held and every move was understood.
	Passed bool

	// Errors holds one message per failed assertion. Empty if Passed.
	Errors []string

	// Board is the board after the run.
	Board *engine.Board
}

// NewResult creates a new passing result.
func NewResult(b *engine.Board) *Result {
	return &Result{Passed: true, Errors: []string{}, Board: b}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Passed = false
}

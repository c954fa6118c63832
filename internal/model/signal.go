package model

import "time"

// Outcome is the per-symbol state within a screening pass.
type Outcome string

const (
	OutcomePending   Outcome = "PENDING"
	OutcomeFetched   Outcome = "FETCHED"
	OutcomeEnriched  Outcome = "ENRICHED"
	OutcomeEvaluated Outcome = "EVALUATED"
	OutcomeSelected  Outcome = "SELECTED"
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeSkipped   Outcome = "SKIPPED"
)

// Terminal reports whether the outcome ends the symbol's pass.
func (o Outcome) Terminal() bool {
	return o == OutcomeSelected || o == OutcomeRejected || o == OutcomeSkipped
}

// SelectionResult is created once per symbol per pass and never mutated.
type SelectionResult struct {
	Symbol  string  `json:"symbol"`
	Matched bool    `json:"matched"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	// Failed lists predicates that were false on the latest row.
	Failed   []string `json:"failed,omitempty"`
	Snapshot Row      `json:"snapshot"`
	Bars     int      `json:"bars"`
	// Err is the typed cause of a SKIPPED outcome.
	Err error `json:"-"`
	// History holds the evaluated bars of a selected symbol when requested.
	History []Bar `json:"-"`
}

// Run is one screening pass over a universe.
type Run struct {
	ID         string            `json:"id"`
	Strategy   string            `json:"strategy"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Universe   int               `json:"universe"`
	Scanned    int               `json:"scanned"`
	Selected   []SelectionResult `json:"selected"`
	Outcomes   []SelectionResult `json:"outcomes"`
	Halted     bool              `json:"halted"`
}

// Count returns how many outcomes ended in o.
func (r *Run) Count(o Outcome) int {
	n := 0
	for _, res := range r.Outcomes {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

package reconcile

import (
	"errors"
	"time"

	"github.com/litcat/litrec/internal/conflict"
)

// Outcome is what happened to one submission record.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeMatched   Outcome = "matched"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMulti     Outcome = "multi_match"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Conflict is the report form of a *conflict.Error.
type Conflict struct {
	Kind    conflict.Kind `json:"kind"`
	Subject string        `json:"subject,omitempty"`
	Curies  []string      `json:"curies,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

// Stats counts records per outcome.
type Stats struct {
	Received      int `json:"received"`
	Unchanged     int `json:"unchanged"`
	Duplicates    int `json:"duplicates"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Matched       int `json:"matched"`
	Rejected      int `json:"rejected"`
	MultiMatch    int `json:"multi_match"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
	AuthorsLocked int `json:"authors_locked"`
	OutOfCorpus   int `json:"out_of_corpus"`
}

// Report summarizes one provider run for curators.
type Report struct {
	RunID       string     `json:"run_id"`
	Provider    string     `json:"provider"`
	Actor       string     `json:"actor"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Conflicts   []Conflict `json:"conflicts"`
	OutOfCorpus []string   `json:"out_of_corpus"`
	Errors      []string   `json:"errors,omitempty"`
	Stats       Stats      `json:"stats"`
	Aborted     bool       `json:"aborted"`
	AbortReason string     `json:"abort_reason,omitempty"`
}

func (r *Report) count(o Outcome) {
	switch o {
	case OutcomeUnchanged:
		r.Stats.Unchanged++
	case OutcomeDuplicate:
		r.Stats.Duplicates++
	case OutcomeCreated:
		r.Stats.Created++
	case OutcomeUpdated:
		r.Stats.Updated++
	case OutcomeMatched:
		r.Stats.Matched++
	case OutcomeRejected:
		r.Stats.Rejected++
	case OutcomeMulti:
		r.Stats.MultiMatch++
	case OutcomeSkipped:
		r.Stats.Skipped++
	case OutcomeFailed:
		r.Stats.Failed++
	}
}

// Add records err as a conflict when it carries a conflict kind, and as a
// plain error otherwise.
func (r *Report) Add(err error) {
	var ce *conflict.Error
	if errors.As(err, &ce) {
		r.Conflicts = append(r.Conflicts, Conflict{
			Kind:    ce.Kind,
			Subject: ce.Subject,
			Curies:  ce.Curies,
			Detail:  ce.Detail,
		})
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

func (r *Report) abort(reason string) {
	r.Aborted = true
	if r.AbortReason == "" {
		r.AbortReason = reason
	}
}

// ConflictsOf returns the conflicts of the given kind.
func (r *Report) ConflictsOf(kind conflict.Kind) []Conflict {
	var out []Conflict
	for _, c := range r.Conflicts {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

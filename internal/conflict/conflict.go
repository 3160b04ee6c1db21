// Package conflict defines the typed errors that cause a single record or merge
// to be skipped and reported to a curator.
package conflict

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a conflict.
type Kind string

const (
	UnparseableDate                Kind = "UnparseableDate"
	PrefixConflictWithinSubmission Kind = "PrefixConflictWithinSubmission"
	PrefixConflictAgainstCanonical Kind = "PrefixConflictAgainstCanonical"
	MultiCanonicalMatch            Kind = "MultiCanonicalMatch"
	StructuralDiffUnsafe           Kind = "StructuralDiffUnsafe"
	MergeUniquenessViolation       Kind = "MergeUniquenessViolation"
	UpstreamFetchFailure           Kind = "UpstreamFetchFailure"
	BiblioOwnershipConflict        Kind = "BiblioOwnershipConflict"
	SelfRelation                   Kind = "SelfRelation"
	ResourceIdentifierReserved     Kind = "ResourceIdentifierReserved"
	ObsoleteIdentifier             Kind = "ObsoleteIdentifier"
)

// Sentinels for errors.Is checks. Every *Error matches the sentinel of its Kind.
var (
	ErrUnparseableDate                = errors.New("unparseable date")
	ErrPrefixConflictWithinSubmission = errors.New("prefix conflict within submission")
	ErrPrefixConflictAgainstCanonical = errors.New("prefix conflict against canonical record")
	ErrMultiCanonicalMatch            = errors.New("multiple canonical matches")
	ErrStructuralDiffUnsafe           = errors.New("structural diff unsafe")
	ErrMergeUniquenessViolation       = errors.New("merge uniqueness violation")
	ErrUpstreamFetchFailure           = errors.New("upstream fetch failure")
	ErrBiblioOwnershipConflict        = errors.New("biblio ownership conflict")
	ErrSelfRelation                   = errors.New("relation is a self-loop")
	ErrResourceIdentifierReserved     = errors.New("identifier reserved for a resource")
	ErrObsoleteIdentifier             = errors.New("identifier is obsolete on the canonical record")
)

var sentinels = map[Kind]error{
	UnparseableDate:                ErrUnparseableDate,
	PrefixConflictWithinSubmission: ErrPrefixConflictWithinSubmission,
	PrefixConflictAgainstCanonical: ErrPrefixConflictAgainstCanonical,
	MultiCanonicalMatch:            ErrMultiCanonicalMatch,
	StructuralDiffUnsafe:           ErrStructuralDiffUnsafe,
	MergeUniquenessViolation:       ErrMergeUniquenessViolation,
	UpstreamFetchFailure:           ErrUpstreamFetchFailure,
	BiblioOwnershipConflict:        ErrBiblioOwnershipConflict,
	SelfRelation:                   ErrSelfRelation,
	ResourceIdentifierReserved:     ErrResourceIdentifierReserved,
	ObsoleteIdentifier:             ErrObsoleteIdentifier,
}

// Error is a conflict with enough context for a curator to act on it.
type Error struct {
	Kind    Kind     `json:"kind"`
	Subject string   `json:"subject,omitempty"` // primary external id or curie the conflict is about
	Curies  []string `json:"curies,omitempty"`  // canonical curies involved, if any
	Detail  string   `json:"detail,omitempty"`
	Err     error    `json:"-"` // underlying cause, may be nil
}

// New builds an *Error.
func New(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an underlying cause.
func Wrap(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Detail: err.Error(), Err: err}
}

// WithCuries returns e with the canonical curies attached.
func (e *Error) WithCuries(curies ...string) *Error {
	e.Curies = append(e.Curies, curies...)
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Subject != "" {
		fmt.Fprintf(&b, " (%s)", e.Subject)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Curies) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Curies, ", "))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// IsFetchFailure returns true if the error is an upstream fetch failure.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrUpstreamFetchFailure)
}

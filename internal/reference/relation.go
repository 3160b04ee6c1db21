package reference

import (
	"errors"
	"fmt"
	"strings"
)

// RelationType is the kind of a directed comment/correction relation.
type RelationType string

const (
	CommentOn              RelationType = "CommentOn"
	ErratumFor             RelationType = "ErratumFor"
	ExpressionOfConcernFor RelationType = "ExpressionOfConcernFor"
	ReprintOf              RelationType = "ReprintOf"
	RepublishedFrom        RelationType = "RepublishedFrom"
	RetractionOf           RelationType = "RetractionOf"
	UpdateOf               RelationType = "UpdateOf"
	ChapterIn              RelationType = "ChapterIn"
)

var relationTypes = map[string]RelationType{
	"commenton":              CommentOn,
	"erratumfor":             ErratumFor,
	"expressionofconcernfor": ExpressionOfConcernFor,
	"reprintof":              ReprintOf,
	"republishedfrom":        RepublishedFrom,
	"retractionof":           RetractionOf,
	"updateof":               UpdateOf,
	"chapterin":              ChapterIn,
}

// Incoming spellings name the relation from the target's point of view.
var incomingRelationTypes = map[string]RelationType{
	"commentin":             CommentOn,
	"erratumin":             ErratumFor,
	"expressionofconcernin": ExpressionOfConcernFor,
	"reprintin":             ReprintOf,
	"republishedin":         RepublishedFrom,
	"retractionin":          RetractionOf,
	"updatein":              UpdateOf,
}

// Relation validation errors.
var (
	ErrUnknownRelationType = errors.New("unknown relation type")
	ErrSelfRelation        = errors.New("relation source and target cannot be the same")
)

// ParseRelationType maps an upstream relation name onto its forward type.
// incoming is true when the name describes the relation from the target's
// side (e.g. "ErratumIn"), in which case source and target must be swapped.
func ParseRelationType(s string) (t RelationType, incoming bool, err error) {
	k := strings.ToLower(strings.TrimSpace(s))
	if t, ok := relationTypes[k]; ok {
		return t, false, nil
	}
	if t, ok := incomingRelationTypes[k]; ok {
		return t, true, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrUnknownRelationType, s)
}

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool {
	_, ok := relationTypes[strings.ToLower(string(t))]
	return ok
}

// Relation is a directed edge between two references.
type Relation struct {
	ID       int64        `json:"id,omitempty"`
	SourceID int64        `json:"source_id"`
	TargetID int64        `json:"target_id"`
	Type     RelationType `json:"relation_type"`
}

// Validate rejects unknown types and self-loops.
func (r Relation) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRelationType, r.Type)
	}
	if r.SourceID == r.TargetID {
		return ErrSelfRelation
	}
	return nil
}

// Key returns the identity of the relation.
func (r Relation) Key() RelationKey {
	return RelationKey{SourceID: r.SourceID, TargetID: r.TargetID, Type: r.Type}
}

// RelationKey is the unique identity of a relation.
type RelationKey struct {
	SourceID int64
	TargetID int64
	Type     RelationType
}

// Package submission defines the normalized record a provider submits for
// reconciliation. Fields are grouped by how the aggregator treats them.
package submission

import (
	"errors"
	"sort"
	"strings"

	"github.com/litcat/litrec/internal/reference"
)

// ErrMissingPrimary is returned for records without a primary identifier.
var ErrMissingPrimary = errors.New("submission has no primary identifier")

// Record is one provider submission. It lives for a single run.
type Record struct {
	Primary     reference.Identifier   `json:"primary"`
	Identifiers []reference.Identifier `json:"identifiers"` // Includes Primary

	Scalars     reference.Biblio `json:"scalars"`
	Lists       Lists            `json:"lists"`
	PerProvider PerProvider      `json:"per_provider"`
	Relations   []Relation       `json:"relations,omitempty"`

	// Volatile values that never participate in change detection
	Meta Meta `json:"-"`
}

// Lists holds ordered and unordered child collections.
type Lists struct {
	Authors   []reference.Author   `json:"authors,omitempty"`
	MeshTerms []reference.MeshTerm `json:"mesh_terms,omitempty"`
}

// PerProvider holds rows owned independently by each provider.
type PerProvider struct {
	ReferenceTypes     []reference.ModReferenceType  `json:"reference_types,omitempty"`
	CorpusAssociations []reference.CorpusAssociation `json:"corpus_associations,omitempty"`
}

// Relation is a comment/correction edge between this record and another
// identifier. Incoming is true when Other is the source of the edge.
type Relation struct {
	Type     reference.RelationType `json:"type"`
	Other    reference.Identifier   `json:"other"`
	Incoming bool                   `json:"incoming,omitempty"`
}

// Meta holds values that change without the publication changing.
type Meta struct {
	DateLastModified string
	Citation         string
	Keywords         []string
	Tags             []string
}

// Validate checks the minimal structure a record needs to be classified.
func (r *Record) Validate() error {
	if r.Primary.Prefix == "" || r.Primary.ID == "" {
		return ErrMissingPrimary
	}
	return nil
}

// AllIdentifiers returns the primary identifier followed by every other
// identifier, with exact case-insensitive duplicates removed.
func (r *Record) AllIdentifiers() []reference.Identifier {
	seen := make(map[string]bool)
	var out []reference.Identifier
	add := func(id reference.Identifier) {
		if id.Prefix == "" || id.ID == "" || seen[id.Key()] {
			return
		}
		seen[id.Key()] = true
		out = append(out, id)
	}
	add(r.Primary)
	for _, id := range r.Identifiers {
		add(id)
	}
	return out
}

// DuplicatePrefixes returns prefixes that carry more than one distinct
// identifier in this record, excluding multi-valued prefixes. The result is
// sorted.
func (r *Record) DuplicatePrefixes() []string {
	counts := make(map[string]int)
	canonical := make(map[string]string)
	for _, id := range r.AllIdentifiers() {
		p := strings.ToUpper(id.Prefix)
		if reference.IsMultiValued(p) {
			continue
		}
		counts[p]++
		canonical[p] = id.Prefix
	}
	var dupes []string
	for p, n := range counts {
		if n > 1 {
			dupes = append(dupes, canonical[p])
		}
	}
	sort.Strings(dupes)
	return dupes
}

// Identifier returns the record's identifier for prefix, if any.
func (r *Record) Identifier(prefix string) (reference.Identifier, bool) {
	for _, id := range r.AllIdentifiers() {
		if strings.EqualFold(id.Prefix, prefix) {
			return id, true
		}
	}
	return reference.Identifier{}, false
}

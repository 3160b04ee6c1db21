// Package reference defines the core domain types for canonical bibliographic references.
package reference

// Reference is the canonical record for one publication.
type Reference struct {
	// Identity
	ID    int64  `json:"id"`
	Curie string `json:"curie"` // Immutable once assigned

	Biblio Biblio `json:"biblio"`

	// Set when the record was retired by a merge; 0 while the record is active.
	MergedInto int64 `json:"merged_into,omitempty"`

	// Child collections, populated when loaded with children
	CrossReferences    []CrossReference    `json:"cross_references,omitempty"`
	Authors            []Author            `json:"authors,omitempty"`
	MeshTerms          []MeshTerm          `json:"mesh_terms,omitempty"`
	ModReferenceTypes  []ModReferenceType  `json:"mod_reference_types,omitempty"`
	CorpusAssociations []CorpusAssociation `json:"corpus_associations,omitempty"`
	Relations          []Relation          `json:"relations,omitempty"`
}

// Obsolete reports whether the reference has been superseded by a merge.
func (r *Reference) Obsolete() bool {
	return r.MergedInto != 0
}

// ValidIdentifiers returns the non-obsolete cross references.
func (r *Reference) ValidIdentifiers() []Identifier {
	var out []Identifier
	for _, x := range r.CrossReferences {
		if !x.Obsolete {
			out = append(out, x.Identifier)
		}
	}
	return out
}

// Corpus returns the provider's corpus association, if any.
func (r *Reference) Corpus(provider string) (CorpusAssociation, bool) {
	for _, ca := range r.CorpusAssociations {
		if ca.Provider == provider {
			return ca, true
		}
	}
	return CorpusAssociation{}, false
}

// MeshTerm is a MeSH heading with an optional qualifier.
type MeshTerm struct {
	ID        int64  `json:"id,omitempty"`
	Heading   string `json:"heading"`
	Qualifier string `json:"qualifier,omitempty"`
}

// Key returns the identity of the term within its reference.
func (m MeshTerm) Key() [2]string {
	return [2]string{m.Heading, m.Qualifier}
}

// ModReferenceType is one provider's classification of a reference.
type ModReferenceType struct {
	ID       int64  `json:"id,omitempty"`
	Provider string `json:"provider"`
	Type     string `json:"reference_type"`
}

// Provenance tags for corpus associations.
const (
	SourceProviderFiles = "dqm_files"
	SourceAutomated     = "automated_alliance"
	SourceManual        = "manual_creation"
)

// CorpusAssociation links a reference to a provider's review corpus.
type CorpusAssociation struct {
	ID       int64  `json:"id,omitempty"`
	Provider string `json:"provider"`
	Corpus   bool   `json:"corpus"`
	Source   string `json:"source"` // How the association was established
}

// Package aggregate computes the patch that brings a canonical reference in
// line with one provider submission, under a per-field ownership policy.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/pubdate"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/submission"
)

// Regime says which field groups the submitting provider may patch on this
// reference.
type Regime struct {
	Provider string

	// Biblio is true when the provider owns the biblio scalars and the
	// author list.
	Biblio bool

	// PerProvider is true when the provider's own identifier is attached to
	// the reference, enabling its reference types and corpus association.
	PerProvider bool

	// Resolve maps a relation's other identifier to a reference id.
	// Relations are skipped when nil.
	Resolve func(reference.Identifier) (int64, bool)
}

// FieldChange is a single scalar assignment.
type FieldChange struct {
	Field reference.Field `json:"field"`
	Old   string          `json:"old"`
	New   string          `json:"new"`
}

// Patch is the set of writes proposed for one reference.
type Patch struct {
	Biblio         []FieldChange                 `json:"biblio,omitempty"`
	AuthorUpdates  []reference.Author            `json:"author_updates,omitempty"`
	AuthorInserts  []reference.Author            `json:"author_inserts,omitempty"`
	AuthorsLocked  bool                          `json:"authors_locked,omitempty"`
	MeshTerms      []reference.MeshTerm          `json:"mesh_terms,omitempty"`
	ReferenceTypes []reference.ModReferenceType  `json:"reference_types,omitempty"`
	Corpus         []reference.CorpusAssociation `json:"corpus,omitempty"`
	Relations      []reference.Relation          `json:"relations,omitempty"`

	// Relation targets that are not (yet) in the catalog.
	UnresolvedRelations []string `json:"unresolved_relations,omitempty"`
}

// Empty reports whether the patch proposes no writes.
func (p *Patch) Empty() bool {
	return len(p.Biblio) == 0 &&
		len(p.AuthorUpdates) == 0 &&
		len(p.AuthorInserts) == 0 &&
		len(p.MeshTerms) == 0 &&
		len(p.ReferenceTypes) == 0 &&
		len(p.Corpus) == 0 &&
		len(p.Relations) == 0
}

// BiblioOwner decides which provider owns the biblio fields of a reference.
// The literature index owns them once the reference has a valid PMID;
// otherwise the single provider holding a valid identifier with its own
// prefix does. Claimants lists those providers. More than one claimant
// without a PMID is a conflict; none at all yields an empty owner.
func BiblioOwner(hasPMID bool, indexProvider string, claimants []string) (string, error) {
	if hasPMID {
		return indexProvider, nil
	}
	uniq := make(map[string]bool)
	for _, c := range claimants {
		uniq[c] = true
	}
	switch len(uniq) {
	case 0:
		return "", nil
	case 1:
		return claimants[0], nil
	}
	names := make([]string, 0, len(uniq))
	for c := range uniq {
		names = append(names, c)
	}
	sort.Strings(names)
	return "", conflict.New(conflict.BiblioOwnershipConflict, "",
		"providers %s all claim biblio ownership", strings.Join(names, ", "))
}

// Diff compares the existing reference with an incoming submission and
// returns the patch the regime allows. Errors are per-field conflicts; they
// never prevent the remaining fields from being patched.
func Diff(existing *reference.Reference, incoming *submission.Record, regime Regime) (Patch, []error) {
	var p Patch
	var errs []error
	subject := incoming.Primary.Curie()

	if regime.Biblio {
		changes, err := diffBiblio(&existing.Biblio, &incoming.Scalars, subject)
		p.Biblio = changes
		if err != nil {
			errs = append(errs, err)
		}

		updates, inserts, locked, err := diffAuthors(existing.Authors, incoming.Lists.Authors, subject)
		p.AuthorUpdates, p.AuthorInserts, p.AuthorsLocked = updates, inserts, locked
		if err != nil {
			errs = append(errs, err)
		}
	}

	p.MeshTerms = diffMeshTerms(existing.MeshTerms, incoming.Lists.MeshTerms)

	if regime.PerProvider {
		p.ReferenceTypes = diffReferenceTypes(existing.ModReferenceTypes, incoming.PerProvider.ReferenceTypes, regime.Provider)
		p.Corpus = diffCorpus(existing, incoming.PerProvider.CorpusAssociations, regime.Provider)
	}

	if regime.Resolve != nil {
		rels, unresolved, relErrs := diffRelations(existing, incoming, regime.Resolve)
		p.Relations, p.UnresolvedRelations = rels, unresolved
		errs = append(errs, relErrs...)
	}

	return p, errs
}

var nonDateFields = []reference.Field{
	reference.FieldTitle,
	reference.FieldCategory,
	reference.FieldVolume,
	reference.FieldPageRange,
	reference.FieldAbstract,
	reference.FieldLanguage,
	reference.FieldPublisher,
	reference.FieldIssueName,
}

func diffBiblio(existing, incoming *reference.Biblio, subject string) ([]FieldChange, error) {
	var out []FieldChange
	set := func(f reference.Field, v string) {
		if v == "" {
			return
		}
		if old := existing.Get(f); old != v {
			out = append(out, FieldChange{Field: f, Old: old, New: v})
		}
	}

	for _, f := range nonDateFields {
		v := incoming.Get(f)
		if f == reference.FieldCategory {
			v = reference.NormalizeCategory(v)
		}
		set(f, v)
	}

	if incoming.DatePublished == "" {
		return out, nil
	}
	r, err := pubdate.Normalize(incoming.DatePublished)
	if err != nil {
		return out, conflict.Wrap(conflict.UnparseableDate, subject, err)
	}
	start, end := incoming.DatePublishedStart, incoming.DatePublishedEnd
	if start == "" {
		start = r.StartString()
	}
	if end == "" {
		end = r.EndString()
	}
	set(reference.FieldDatePublished, incoming.DatePublished)
	set(reference.FieldDatePublishedStart, start)
	set(reference.FieldDatePublishedEnd, end)
	return out, nil
}

func diffAuthors(existing, incoming []reference.Author, subject string) (updates, inserts []reference.Author, locked bool, err error) {
	if len(incoming) == 0 {
		return nil, nil, false, nil
	}
	for _, a := range existing {
		if a.CuratorMarked() {
			return nil, nil, true, nil
		}
	}

	byRank := make(map[int]reference.Author, len(existing))
	for _, a := range existing {
		if !a.HasRank() {
			return nil, nil, false, conflict.New(conflict.StructuralDiffUnsafe, subject,
				"stored author %d has no order key", a.ID)
		}
		if _, dup := byRank[a.Rank]; dup {
			return nil, nil, false, conflict.New(conflict.StructuralDiffUnsafe, subject,
				"stored authors share order key %d", a.Rank)
		}
		byRank[a.Rank] = a
	}

	seen := make(map[int]bool, len(incoming))
	for _, in := range incoming {
		if !in.HasRank() || seen[in.Rank] {
			return nil, nil, false, conflict.New(conflict.StructuralDiffUnsafe, subject,
				"submitted author order key %d is missing or repeated", in.Rank)
		}
		seen[in.Rank] = true
	}

	for _, in := range incoming {
		cur, ok := byRank[in.Rank]
		if !ok {
			in.ID = 0
			inserts = append(inserts, in)
			continue
		}
		if sameAuthor(cur, in) {
			continue
		}
		up := cur
		up.Name, up.FirstName, up.LastName = in.Name, in.FirstName, in.LastName
		if in.ORCID != "" {
			up.ORCID = in.ORCID
		}
		updates = append(updates, up)
	}
	return updates, inserts, false, nil
}

func sameAuthor(a, b reference.Author) bool {
	return a.Name == b.Name &&
		a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		(b.ORCID == "" || a.ORCID == b.ORCID)
}

func diffMeshTerms(existing, incoming []reference.MeshTerm) []reference.MeshTerm {
	have := make(map[[2]string]bool, len(existing))
	for _, m := range existing {
		have[m.Key()] = true
	}
	var out []reference.MeshTerm
	for _, m := range incoming {
		if m.Heading == "" || have[m.Key()] {
			continue
		}
		have[m.Key()] = true
		m.ID = 0
		out = append(out, m)
	}
	return out
}

func diffReferenceTypes(existing, incoming []reference.ModReferenceType, provider string) []reference.ModReferenceType {
	key := func(m reference.ModReferenceType) string {
		return strings.ToLower(m.Provider) + "\x00" + strings.ToLower(m.Type)
	}
	have := make(map[string]bool, len(existing))
	for _, m := range existing {
		have[key(m)] = true
	}
	var out []reference.ModReferenceType
	for _, m := range incoming {
		if m.Type == "" || !strings.EqualFold(m.Provider, provider) || have[key(m)] {
			continue
		}
		have[key(m)] = true
		m.ID = 0
		out = append(out, m)
	}
	return out
}

func diffCorpus(existing *reference.Reference, incoming []reference.CorpusAssociation, provider string) []reference.CorpusAssociation {
	var out []reference.CorpusAssociation
	for _, in := range incoming {
		if !strings.EqualFold(in.Provider, provider) {
			continue
		}
		cur, ok := existing.Corpus(in.Provider)
		if ok && cur.Corpus == in.Corpus {
			continue
		}
		if ok && in.Source == "" {
			in.Source = cur.Source
		}
		in.ID = cur.ID
		out = append(out, in)
	}
	return out
}

func diffRelations(existing *reference.Reference, incoming *submission.Record, resolve func(reference.Identifier) (int64, bool)) ([]reference.Relation, []string, []error) {
	have := make(map[reference.RelationKey]bool, len(existing.Relations))
	for _, r := range existing.Relations {
		have[r.Key()] = true
	}

	var out []reference.Relation
	var unresolved []string
	var errs []error
	for _, rel := range incoming.Relations {
		other, ok := resolve(rel.Other)
		if !ok {
			unresolved = append(unresolved, rel.Other.Curie())
			continue
		}
		edge := reference.Relation{SourceID: existing.ID, TargetID: other, Type: rel.Type}
		if rel.Incoming {
			edge.SourceID, edge.TargetID = other, existing.ID
		}
		if err := edge.Validate(); err != nil {
			err = fmt.Errorf("%s %s: %w", rel.Type, rel.Other.Curie(), err)
			if errors.Is(err, reference.ErrSelfRelation) {
				err = conflict.Wrap(conflict.SelfRelation, incoming.Primary.Curie(), err).WithCuries(existing.Curie)
			}
			errs = append(errs, err)
			continue
		}
		if have[edge.Key()] {
			continue
		}
		have[edge.Key()] = true
		out = append(out, edge)
	}
	return out, unresolved, errs
}

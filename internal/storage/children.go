package storage

import (
	"context"
	"fmt"

	"github.com/litcat/litrec/internal/reference"
)

// Child tables whose rows hang off a single reference_id column.
const (
	TableAuthors            = "authors"
	TableMeshTerms          = "mesh_terms"
	TableModReferenceTypes  = "mod_reference_types"
	TableCorpusAssociations = "corpus_associations"
)

var movableTables = map[string]bool{
	TableAuthors:            true,
	TableMeshTerms:          true,
	TableModReferenceTypes:  true,
	TableCorpusAssociations: true,
}

func (r reader) authorsFor(ctx context.Context, referenceID int64) ([]reference.Author, error) {
	rows, err := r.query(ctx, `
		SELECT id, COALESCE(author_rank, 0), name, first_name, last_name, orcid,
			first_author, corresponding_author
		FROM authors WHERE reference_id = ?
		ORDER BY CASE WHEN author_rank IS NULL THEN 1 ELSE 0 END, author_rank, id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying authors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reference.Author
	for rows.Next() {
		var a reference.Author
		if err := rows.Scan(&a.ID, &a.Rank, &a.Name, &a.FirstName, &a.LastName, &a.ORCID,
			&a.FirstAuthor, &a.Corresponding); err != nil {
			return nil, fmt.Errorf("scanning author: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableRank(rank int) any {
	if rank <= 0 {
		return nil
	}
	return rank
}

// InsertAuthor adds an author to a reference.
func (t *Tx) InsertAuthor(ctx context.Context, actor string, referenceID int64, a reference.Author) (int64, error) {
	if actor == "" {
		return 0, ErrMissingActor
	}
	id, err := t.insert(ctx, `
		INSERT INTO authors (reference_id, author_rank, name, first_name, last_name, orcid,
			first_author, corresponding_author)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		referenceID, nullableRank(a.Rank), a.Name, a.FirstName, a.LastName, a.ORCID,
		a.FirstAuthor, a.Corresponding)
	if err != nil {
		return 0, fmt.Errorf("inserting author: %w", err)
	}
	a.ID = id
	return id, t.record(ctx, actor, TableAuthors, id, referenceID, ActionCreate, a)
}

// UpdateAuthor rewrites the provider-supplied fields of an existing author.
// Curator marks (first/corresponding) are never touched here.
func (t *Tx) UpdateAuthor(ctx context.Context, actor string, referenceID int64, a reference.Author) error {
	if actor == "" {
		return ErrMissingActor
	}
	_, err := t.exec(ctx, `
		UPDATE authors SET author_rank = ?, name = ?, first_name = ?, last_name = ?, orcid = ?
		WHERE id = ? AND reference_id = ?`,
		nullableRank(a.Rank), a.Name, a.FirstName, a.LastName, a.ORCID, a.ID, referenceID)
	if err != nil {
		return fmt.Errorf("updating author %d: %w", a.ID, err)
	}
	return t.record(ctx, actor, TableAuthors, a.ID, referenceID, ActionUpdate, a)
}

func (r reader) meshTermsFor(ctx context.Context, referenceID int64) ([]reference.MeshTerm, error) {
	rows, err := r.query(ctx, `
		SELECT id, heading, qualifier FROM mesh_terms WHERE reference_id = ? ORDER BY id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying mesh terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reference.MeshTerm
	for rows.Next() {
		var m reference.MeshTerm
		if err := rows.Scan(&m.ID, &m.Heading, &m.Qualifier); err != nil {
			return nil, fmt.Errorf("scanning mesh term: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMeshTerm adds a MeSH term to a reference.
func (t *Tx) InsertMeshTerm(ctx context.Context, actor string, referenceID int64, m reference.MeshTerm) (int64, error) {
	if actor == "" {
		return 0, ErrMissingActor
	}
	id, err := t.insert(ctx, `INSERT INTO mesh_terms (reference_id, heading, qualifier) VALUES (?, ?, ?)`,
		referenceID, m.Heading, m.Qualifier)
	if err != nil {
		return 0, fmt.Errorf("inserting mesh term: %w", err)
	}
	m.ID = id
	return id, t.record(ctx, actor, TableMeshTerms, id, referenceID, ActionCreate, m)
}

func (r reader) modReferenceTypesFor(ctx context.Context, referenceID int64) ([]reference.ModReferenceType, error) {
	rows, err := r.query(ctx, `
		SELECT id, provider, reference_type FROM mod_reference_types
		WHERE reference_id = ? ORDER BY id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying reference types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reference.ModReferenceType
	for rows.Next() {
		var m reference.ModReferenceType
		if err := rows.Scan(&m.ID, &m.Provider, &m.Type); err != nil {
			return nil, fmt.Errorf("scanning reference type: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertModReferenceType adds a provider classification to a reference.
func (t *Tx) InsertModReferenceType(ctx context.Context, actor string, referenceID int64, m reference.ModReferenceType) (int64, error) {
	if actor == "" {
		return 0, ErrMissingActor
	}
	id, err := t.insert(ctx, `
		INSERT INTO mod_reference_types (reference_id, provider, reference_type) VALUES (?, ?, ?)`,
		referenceID, m.Provider, m.Type)
	if err != nil {
		return 0, fmt.Errorf("inserting reference type: %w", err)
	}
	m.ID = id
	return id, t.record(ctx, actor, TableModReferenceTypes, id, referenceID, ActionCreate, m)
}

func (r reader) corpusAssociationsFor(ctx context.Context, referenceID int64) ([]reference.CorpusAssociation, error) {
	rows, err := r.query(ctx, `
		SELECT id, provider, corpus, source FROM corpus_associations
		WHERE reference_id = ? ORDER BY provider`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying corpus associations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reference.CorpusAssociation
	for rows.Next() {
		var c reference.CorpusAssociation
		if err := rows.Scan(&c.ID, &c.Provider, &c.Corpus, &c.Source); err != nil {
			return nil, fmt.Errorf("scanning corpus association: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertCorpusAssociation sets the provider's corpus flag on a reference,
// inserting the association if it does not exist.
func (t *Tx) UpsertCorpusAssociation(ctx context.Context, actor string, referenceID int64, c reference.CorpusAssociation) error {
	if actor == "" {
		return ErrMissingActor
	}
	id, err := t.insert(ctx, `
		INSERT INTO corpus_associations (reference_id, provider, corpus, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (reference_id, provider) DO UPDATE SET corpus = excluded.corpus, source = excluded.source`,
		referenceID, c.Provider, c.Corpus, c.Source)
	if err != nil {
		return fmt.Errorf("upserting corpus association: %w", err)
	}
	c.ID = id
	return t.record(ctx, actor, TableCorpusAssociations, id, referenceID, ActionUpdate, c)
}

// OutOfCorpusCandidate is a reference holding a provider identifier that the
// provider's latest submission did not mention.
type OutOfCorpusCandidate struct {
	ReferenceID int64  `json:"reference_id"`
	Curie       string `json:"curie"`
	Identifier  string `json:"identifier"`
}

// ProviderCorpus returns active references whose corpus association for
// provider is set and which hold a valid identifier with idPrefix.
func (r reader) ProviderCorpus(ctx context.Context, provider, idPrefix string) ([]OutOfCorpusCandidate, error) {
	rows, err := r.query(ctx, `
		SELECT refs.id, refs.curie, x.curie
		FROM corpus_associations ca
		JOIN refs ON refs.id = ca.reference_id
		JOIN cross_references x ON x.reference_id = refs.id
		WHERE ca.provider = ? AND ca.corpus AND refs.merged_into IS NULL
			AND UPPER(x.prefix) = UPPER(?) AND NOT x.obsolete
		ORDER BY refs.id, x.id`, provider, idPrefix)
	if err != nil {
		return nil, fmt.Errorf("querying provider corpus: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []OutOfCorpusCandidate
	for rows.Next() {
		var c OutOfCorpusCandidate
		if err := rows.Scan(&c.ReferenceID, &c.Curie, &c.Identifier); err != nil {
			return nil, fmt.Errorf("scanning corpus candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r reader) relationsFor(ctx context.Context, referenceID int64) ([]reference.Relation, error) {
	rows, err := r.query(ctx, `
		SELECT id, source_id, target_id, relation_type FROM reference_relations
		WHERE source_id = ? OR target_id = ? ORDER BY id`, referenceID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []reference.Relation
	for rows.Next() {
		var rel reference.Relation
		if err := rows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Type); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// InsertRelation adds a directed relation. Self-loops and unknown types are
// rejected before touching the database.
func (t *Tx) InsertRelation(ctx context.Context, actor string, rel reference.Relation) (int64, error) {
	if actor == "" {
		return 0, ErrMissingActor
	}
	if err := rel.Validate(); err != nil {
		return 0, err
	}
	id, err := t.insert(ctx, `
		INSERT INTO reference_relations (source_id, target_id, relation_type) VALUES (?, ?, ?)`,
		rel.SourceID, rel.TargetID, string(rel.Type))
	if err != nil {
		return 0, fmt.Errorf("inserting relation: %w", err)
	}
	rel.ID = id
	return id, t.record(ctx, actor, "reference_relations", id, rel.SourceID, ActionCreate, rel)
}

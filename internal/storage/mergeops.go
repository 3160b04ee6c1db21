package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/litcat/litrec/internal/reference"
)

// ErrTableNotMovable is returned by MoveRow for tables without a plain
// reference_id column.
var ErrTableNotMovable = errors.New("table rows cannot be moved")

// MoveRow reassigns a child row from one reference to another.
func (t *Tx) MoveRow(ctx context.Context, actor, table string, rowID, fromID, toID int64) error {
	if actor == "" {
		return ErrMissingActor
	}
	if !movableTables[table] {
		return fmt.Errorf("%w: %s", ErrTableNotMovable, table)
	}
	if _, err := t.exec(ctx, `UPDATE `+table+` SET reference_id = ? WHERE id = ? AND reference_id = ?`,
		toID, rowID, fromID); err != nil {
		return fmt.Errorf("moving %s row %d: %w", table, rowID, err)
	}
	payload := map[string]int64{"from": fromID, "to": toID}
	if err := t.record(ctx, actor, table, rowID, fromID, ActionMove, payload); err != nil {
		return err
	}
	return t.record(ctx, actor, table, rowID, toID, ActionMove, payload)
}

// SetCorpusFlag overwrites the corpus flag of an existing association.
func (t *Tx) SetCorpusFlag(ctx context.Context, actor string, referenceID int64, provider string, corpus bool) error {
	if actor == "" {
		return ErrMissingActor
	}
	var rowID int64
	err := t.queryRow(ctx, `
		UPDATE corpus_associations SET corpus = ?
		WHERE reference_id = ? AND provider = ? RETURNING id`, corpus, referenceID, provider).Scan(&rowID)
	if err != nil {
		return fmt.Errorf("setting corpus flag for %s on %d: %w", provider, referenceID, err)
	}
	return t.record(ctx, actor, TableCorpusAssociations, rowID, referenceID, ActionUpdate,
		map[string]any{"provider": provider, "corpus": corpus})
}

// RepointRelation rewrites the endpoints of a relation.
func (t *Tx) RepointRelation(ctx context.Context, actor string, rel reference.Relation) error {
	if actor == "" {
		return ErrMissingActor
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	if _, err := t.exec(ctx, `UPDATE reference_relations SET source_id = ?, target_id = ? WHERE id = ?`,
		rel.SourceID, rel.TargetID, rel.ID); err != nil {
		return fmt.Errorf("repointing relation %d: %w", rel.ID, err)
	}
	return t.record(ctx, actor, "reference_relations", rel.ID, rel.SourceID, ActionMove, rel)
}

// DeleteRelation removes a relation.
func (t *Tx) DeleteRelation(ctx context.Context, actor string, rel reference.Relation) error {
	if actor == "" {
		return ErrMissingActor
	}
	if _, err := t.exec(ctx, `DELETE FROM reference_relations WHERE id = ?`, rel.ID); err != nil {
		return fmt.Errorf("deleting relation %d: %w", rel.ID, err)
	}
	return t.record(ctx, actor, "reference_relations", rel.ID, rel.SourceID, ActionDelete, rel)
}

// RetireReference marks retired as merged into survivor and records the
// redirect. Existing redirects that pointed at retired are compressed to point
// at survivor so every chain stays one hop long.
func (t *Tx) RetireReference(ctx context.Context, actor string, retired, survivor *reference.Reference) error {
	if actor == "" {
		return ErrMissingActor
	}
	if retired.ID == survivor.ID {
		return fmt.Errorf("retiring reference %d into itself", retired.ID)
	}

	now := t.d.timestamp()
	if _, err := t.exec(ctx, `UPDATE refs SET merged_into = ?, updated_at = ? WHERE id = ?`,
		survivor.ID, now, retired.ID); err != nil {
		return fmt.Errorf("retiring reference %d: %w", retired.ID, err)
	}
	if _, err := t.exec(ctx, `UPDATE refs SET merged_into = ?, updated_at = ? WHERE merged_into = ?`,
		survivor.ID, now, retired.ID); err != nil {
		return fmt.Errorf("compressing merge chain: %w", err)
	}
	if _, err := t.exec(ctx, `UPDATE obsolete_references SET new_id = ? WHERE new_id = ?`,
		survivor.ID, retired.ID); err != nil {
		return fmt.Errorf("compressing redirects: %w", err)
	}
	if _, err := t.exec(ctx, `
		INSERT INTO obsolete_references (curie, new_id) VALUES (?, ?)
		ON CONFLICT (curie) DO UPDATE SET new_id = excluded.new_id`,
		retired.Curie, survivor.ID); err != nil {
		return fmt.Errorf("recording redirect for %s: %w", retired.Curie, err)
	}

	payload := map[string]string{"curie": retired.Curie, "merged_into": survivor.Curie}
	if err := t.record(ctx, actor, "refs", retired.ID, retired.ID, ActionRetire, payload); err != nil {
		return err
	}
	return t.record(ctx, actor, "refs", retired.ID, survivor.ID, ActionRetire, payload)
}

// Redirect is one row of the obsolete-curie table.
type Redirect struct {
	Curie string `json:"curie"`
	NewID int64  `json:"new_id"`
}

// Redirects returns the retired curies that resolve to id.
func (r reader) Redirects(ctx context.Context, id int64) ([]Redirect, error) {
	rows, err := r.query(ctx, `SELECT curie, new_id FROM obsolete_references WHERE new_id = ? ORDER BY curie`, id)
	if err != nil {
		return nil, fmt.Errorf("querying redirects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Redirect
	for rows.Next() {
		var rd Redirect
		if err := rows.Scan(&rd.Curie, &rd.NewID); err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

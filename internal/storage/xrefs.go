package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/litcat/litrec/internal/reference"
)

// LoadCrossReferences returns every identifier row of active references, for
// building the identifier graph.
func (r reader) LoadCrossReferences(ctx context.Context) ([]reference.CrossReference, error) {
	rows, err := r.query(ctx, `
		SELECT x.id, x.reference_id, x.prefix, x.identifier, x.obsolete
		FROM cross_references x
		JOIN refs ON refs.id = x.reference_id
		WHERE refs.merged_into IS NULL
		ORDER BY x.id`)
	if err != nil {
		return nil, fmt.Errorf("querying cross references: %w", err)
	}
	return scanCrossReferences(rows)
}

func (r reader) crossReferencesFor(ctx context.Context, referenceID int64) ([]reference.CrossReference, error) {
	rows, err := r.query(ctx, `
		SELECT id, reference_id, prefix, identifier, obsolete
		FROM cross_references WHERE reference_id = ? ORDER BY id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("querying cross references: %w", err)
	}
	return scanCrossReferences(rows)
}

func scanCrossReferences(rows *sql.Rows) ([]reference.CrossReference, error) {
	defer func() { _ = rows.Close() }()
	var out []reference.CrossReference
	for rows.Next() {
		var x reference.CrossReference
		if err := rows.Scan(&x.ID, &x.ReferenceID, &x.Prefix, &x.Identifier.ID, &x.Obsolete); err != nil {
			return nil, fmt.Errorf("scanning cross reference: %w", err)
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// AttachIdentifier makes id a valid identifier of the reference. An obsolete
// row for the same identifier on the same reference is revived rather than
// duplicated.
func (t *Tx) AttachIdentifier(ctx context.Context, actor string, referenceID int64, id reference.Identifier) error {
	if actor == "" {
		return ErrMissingActor
	}

	var rowID int64
	err := t.queryRow(ctx, `
		SELECT id FROM cross_references
		WHERE reference_id = ? AND LOWER(curie) = LOWER(?) AND obsolete
		ORDER BY id LIMIT 1`, referenceID, id.Curie()).Scan(&rowID)
	switch {
	case err == nil:
		if _, err := t.exec(ctx, `UPDATE cross_references SET obsolete = FALSE WHERE id = ?`, rowID); err != nil {
			return fmt.Errorf("reviving %s: %w", id.Curie(), err)
		}
		return t.record(ctx, actor, "cross_references", rowID, referenceID, ActionUpdate,
			map[string]any{"curie": id.Curie(), "obsolete": false})
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("looking up %s: %w", id.Curie(), err)
	}

	rowID, err = t.insert(ctx, `
		INSERT INTO cross_references (reference_id, curie, prefix, identifier, obsolete)
		VALUES (?, ?, ?, ?, FALSE)`, referenceID, id.Curie(), id.Prefix, id.ID)
	if err != nil {
		return fmt.Errorf("inserting %s: %w", id.Curie(), err)
	}
	return t.record(ctx, actor, "cross_references", rowID, referenceID, ActionCreate,
		map[string]any{"curie": id.Curie()})
}

// SetIdentifierObsolete retires a valid identifier of the reference. The row
// is kept so the identifier stays discoverable.
func (t *Tx) SetIdentifierObsolete(ctx context.Context, actor string, referenceID int64, id reference.Identifier) error {
	if actor == "" {
		return ErrMissingActor
	}
	rows, err := t.query(ctx, `
		SELECT id FROM cross_references
		WHERE reference_id = ? AND LOWER(curie) = LOWER(?) AND NOT obsolete`, referenceID, id.Curie())
	if err != nil {
		return fmt.Errorf("looking up %s: %w", id.Curie(), err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("%s on reference %d: %w", id.Curie(), referenceID, ErrNotFound)
	}
	for _, rowID := range ids {
		if _, err := t.exec(ctx, `UPDATE cross_references SET obsolete = TRUE WHERE id = ?`, rowID); err != nil {
			return fmt.Errorf("retiring %s: %w", id.Curie(), err)
		}
		if err := t.record(ctx, actor, "cross_references", rowID, referenceID, ActionUpdate,
			map[string]any{"curie": id.Curie(), "obsolete": true}); err != nil {
			return err
		}
	}
	return nil
}

// MoveCrossReference reassigns an identifier row to another reference.
func (t *Tx) MoveCrossReference(ctx context.Context, actor string, rowID, fromID, toID int64, obsolete bool) error {
	if actor == "" {
		return ErrMissingActor
	}
	if _, err := t.exec(ctx, `UPDATE cross_references SET reference_id = ?, obsolete = ? WHERE id = ?`,
		toID, obsolete, rowID); err != nil {
		return fmt.Errorf("moving cross reference %d: %w", rowID, err)
	}
	payload := map[string]any{"from": fromID, "to": toID, "obsolete": obsolete}
	if err := t.record(ctx, actor, "cross_references", rowID, fromID, ActionMove, payload); err != nil {
		return err
	}
	return t.record(ctx, actor, "cross_references", rowID, toID, ActionMove, payload)
}

// ResourceIdentifiers returns curies reserved for journals and other
// resources.
func (r reader) ResourceIdentifiers(ctx context.Context) (map[string]bool, error) {
	rows, err := r.query(ctx, `SELECT curie FROM resource_identifiers`)
	if err != nil {
		return nil, fmt.Errorf("querying resource identifiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		id, err := reference.ParseCurie(c)
		if err != nil {
			continue
		}
		out[id.Key()] = true
	}
	return out, rows.Err()
}

// AddResourceIdentifier reserves a curie for a resource.
func (d *DB) AddResourceIdentifier(ctx context.Context, curie string) error {
	if _, err := reference.ParseCurie(curie); err != nil {
		return err
	}
	_, err := d.exec(ctx, `INSERT INTO resource_identifiers (curie) VALUES (?) ON CONFLICT (curie) DO NOTHING`, curie)
	if err != nil {
		return fmt.Errorf("adding resource identifier %s: %w", curie, err)
	}
	return nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer func() { _ = rows.Close() }()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Version actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionMove   = "move"
	ActionDelete = "delete"
	ActionRetire = "retire"
)

// Version is one append-only history entry.
type Version struct {
	ID          int64           `json:"id"`
	Table       string          `json:"table"`
	RowID       int64           `json:"row_id"`
	ReferenceID int64           `json:"reference_id"`
	Action      string          `json:"action"`
	Actor       string          `json:"actor"`
	Payload     json.RawMessage `json:"payload"`
	RecordedAt  string          `json:"recorded_at"`
}

// record appends a version row. Every write on a Tx goes through here, which
// also enforces that an actor was supplied.
func (t *Tx) record(ctx context.Context, actor, table string, rowID, referenceID int64, action string, payload any) error {
	if actor == "" {
		return ErrMissingActor
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding version payload: %w", err)
	}
	_, err = t.exec(ctx, `
		INSERT INTO versions (table_name, row_id, reference_id, action, actor, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table, rowID, referenceID, action, actor, string(data), t.d.timestamp())
	if err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return nil
}

// History returns version rows for the given references in recording order.
func (r reader) History(ctx context.Context, referenceIDs ...int64) ([]Version, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(referenceIDs)), ",")
	args := make([]any, len(referenceIDs))
	for i, id := range referenceIDs {
		args[i] = id
	}

	rows, err := r.query(ctx, `
		SELECT id, table_name, row_id, reference_id, action, actor, payload, recorded_at
		FROM versions WHERE reference_id IN (`+placeholders+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Version
	for rows.Next() {
		var v Version
		var payload string
		if err := rows.Scan(&v.ID, &v.Table, &v.RowID, &v.ReferenceID, &v.Action, &v.Actor, &payload, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		v.Payload = json.RawMessage(payload)
		out = append(out, v)
	}
	return out, rows.Err()
}

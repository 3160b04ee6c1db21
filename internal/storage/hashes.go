package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Hash is one stored content hash.
type Hash struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Hash       string `json:"hash"`
	UpdatedAt  string `json:"updated_at"`
}

// GetHash returns the stored content hash for (provider, externalID).
func (d *DB) GetHash(ctx context.Context, provider, externalID string) (string, bool, error) {
	var h string
	err := d.queryRow(ctx, `SELECT hash FROM content_hashes WHERE provider = ? AND external_id = ?`,
		provider, externalID).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying hash: %w", err)
	}
	return h, true, nil
}

// PutHash stores or replaces a content hash.
func (d *DB) PutHash(ctx context.Context, provider, externalID, hash string) error {
	_, err := d.exec(ctx, `
		INSERT INTO content_hashes (provider, external_id, hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (provider, external_id) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		provider, externalID, hash, d.timestamp())
	if err != nil {
		return fmt.Errorf("storing hash: %w", err)
	}
	return nil
}

// DeleteHash removes one stored hash.
func (d *DB) DeleteHash(ctx context.Context, provider, externalID string) error {
	if _, err := d.exec(ctx, `DELETE FROM content_hashes WHERE provider = ? AND external_id = ?`,
		provider, externalID); err != nil {
		return fmt.Errorf("deleting hash: %w", err)
	}
	return nil
}

// DeleteHashes removes every hash for provider, or all hashes when provider
// is empty.
func (d *DB) DeleteHashes(ctx context.Context, provider string) (int64, error) {
	var res sql.Result
	var err error
	if provider == "" {
		res, err = d.exec(ctx, `DELETE FROM content_hashes`)
	} else {
		res, err = d.exec(ctx, `DELETE FROM content_hashes WHERE provider = ?`, provider)
	}
	if err != nil {
		return 0, fmt.Errorf("deleting hashes: %w", err)
	}
	return res.RowsAffected()
}

// ListHashes returns stored hashes ordered by provider and external id. An
// empty provider lists all of them.
func (d *DB) ListHashes(ctx context.Context, provider string) ([]Hash, error) {
	query := `SELECT provider, external_id, hash, updated_at FROM content_hashes`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	rows, err := d.query(ctx, query+` ORDER BY provider, external_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Hash
	for rows.Next() {
		var h Hash
		if err := rows.Scan(&h.Provider, &h.ExternalID, &h.Hash, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// RestoreHashes replaces stored hashes with hs in a single transaction.
func (d *DB) RestoreHashes(ctx context.Context, hs []Hash) error {
	return d.WithTx(ctx, func(tx *Tx) error {
		for _, h := range hs {
			if _, err := tx.exec(ctx, `
				INSERT INTO content_hashes (provider, external_id, hash, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (provider, external_id) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
				h.Provider, h.ExternalID, h.Hash, h.UpdatedAt); err != nil {
				return fmt.Errorf("restoring hash %s/%s: %w", h.Provider, h.ExternalID, err)
			}
		}
		return nil
	})
}

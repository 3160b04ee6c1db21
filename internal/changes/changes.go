// Package changes decides whether a provider submission differs from the one
// seen on the previous run, using a persisted content hash per
// (provider, external id). External ids are compared case-insensitively.
package changes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/litcat/litrec/internal/submission"
	"golang.org/x/crypto/blake2b"
)

// HashStore persists content hashes. Hashes are advisory: losing them only
// costs a full re-aggregation.
type HashStore interface {
	// GetHash returns the stored hash; found is false when none exists.
	GetHash(ctx context.Context, provider, externalID string) (hash string, found bool, err error)
	PutHash(ctx context.Context, provider, externalID, hash string) error
	DeleteHash(ctx context.Context, provider, externalID string) error
	DeleteHashes(ctx context.Context, provider string) (int64, error)
}

// Detector compares submissions against stored hashes.
type Detector struct {
	store HashStore
}

// NewDetector returns a Detector backed by store.
func NewDetector(store HashStore) *Detector {
	return &Detector{store: store}
}

// Fingerprint returns the content hash of rec. Volatile metadata is excluded
// by the record's serialization, so two records differing only in Meta hash
// equally.
func Fingerprint(rec *submission.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("serializing record: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HasChanged reports whether rec differs from the last committed version for
// (provider, externalID). A missing hash counts as changed.
func (d *Detector) HasChanged(ctx context.Context, provider, externalID string, rec *submission.Record) (bool, error) {
	h, err := Fingerprint(rec)
	if err != nil {
		return true, err
	}
	old, found, err := d.store.GetHash(ctx, provider, hashKey(externalID))
	if err != nil {
		return true, fmt.Errorf("reading hash for %s/%s: %w", provider, externalID, err)
	}
	return !found || old != h, nil
}

// Commit stores the hash of rec. Call only after the canonical write for rec
// has committed.
func (d *Detector) Commit(ctx context.Context, provider, externalID string, rec *submission.Record) error {
	h, err := Fingerprint(rec)
	if err != nil {
		return err
	}
	if err := d.store.PutHash(ctx, provider, hashKey(externalID), h); err != nil {
		return fmt.Errorf("storing hash for %s/%s: %w", provider, externalID, err)
	}
	return nil
}

// CommitHash stores a precomputed fingerprint.
func (d *Detector) CommitHash(ctx context.Context, provider, externalID, hash string) error {
	if err := d.store.PutHash(ctx, provider, hashKey(externalID), hash); err != nil {
		return fmt.Errorf("storing hash for %s/%s: %w", provider, externalID, err)
	}
	return nil
}

// Forget drops the stored hash for one record so its next submission is
// processed even if unchanged.
func (d *Detector) Forget(ctx context.Context, provider, externalID string) error {
	if err := d.store.DeleteHash(ctx, provider, hashKey(externalID)); err != nil {
		return fmt.Errorf("forgetting hash for %s/%s: %w", provider, externalID, err)
	}
	return nil
}

// Reset forgets every hash for provider so the next run re-aggregates all
// records.
func (d *Detector) Reset(ctx context.Context, provider string) (int64, error) {
	return d.store.DeleteHashes(ctx, provider)
}

func hashKey(externalID string) string {
	return strings.ToLower(externalID)
}

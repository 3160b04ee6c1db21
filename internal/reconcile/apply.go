package reconcile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/aggregate"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
	"github.com/litcat/litrec/internal/submission"
)

// aggregate diffs rec against ref under regime and writes the patch. wrote
// reports whether anything was written. An author list that cannot be aligned
// fails the whole record.
func (r *run) aggregate(ctx context.Context, tx *storage.Tx, rec *submission.Record, ref *reference.Reference, regime aggregate.Regime) (wrote bool, notes []error, err error) {
	regime.Resolve = r.resolveOne
	patch, notes := aggregate.Diff(ref, rec, regime)
	for _, n := range notes {
		if errors.Is(n, conflict.ErrStructuralDiffUnsafe) {
			var ce *conflict.Error
			if errors.As(n, &ce) {
				ce.WithCuries(ref.Curie)
			}
			return false, nil, n
		}
	}
	if patch.AuthorsLocked {
		r.report.Stats.AuthorsLocked++
		r.log.Debug("author list locked by curator marks", zap.String("curie", ref.Curie))
	}
	if len(patch.UnresolvedRelations) > 0 {
		r.log.Debug("relation targets not in catalog",
			zap.String("subject", rec.Primary.Curie()),
			zap.Strings("targets", patch.UnresolvedRelations))
	}
	if patch.Empty() {
		return false, notes, nil
	}
	return true, notes, applyPatch(ctx, tx, r.actor, ref.ID, &patch)
}

// resolveOne resolves a relation target. Ambiguous identifiers resolve to
// nothing.
func (r *run) resolveOne(id reference.Identifier) (int64, bool) {
	owners := r.graph.ResolveAll(id)
	if len(owners) != 1 {
		return 0, false
	}
	return owners[0], true
}

func applyPatch(ctx context.Context, tx *storage.Tx, actor string, refID int64, p *aggregate.Patch) error {
	if len(p.Biblio) > 0 {
		changes := make([]storage.BiblioChange, len(p.Biblio))
		for i, c := range p.Biblio {
			changes[i] = storage.BiblioChange{Field: c.Field, Old: c.Old, New: c.New}
		}
		if err := tx.UpdateBiblio(ctx, actor, refID, changes); err != nil {
			return err
		}
	}
	for _, a := range p.AuthorUpdates {
		if err := tx.UpdateAuthor(ctx, actor, refID, a); err != nil {
			return err
		}
	}
	for _, a := range p.AuthorInserts {
		if _, err := tx.InsertAuthor(ctx, actor, refID, a); err != nil {
			return err
		}
	}
	for _, m := range p.MeshTerms {
		if _, err := tx.InsertMeshTerm(ctx, actor, refID, m); err != nil {
			return err
		}
	}
	for _, m := range p.ReferenceTypes {
		if _, err := tx.InsertModReferenceType(ctx, actor, refID, m); err != nil {
			return err
		}
	}
	for _, c := range p.Corpus {
		if err := tx.UpsertCorpusAssociation(ctx, actor, refID, c); err != nil {
			return err
		}
	}
	for _, rel := range p.Relations {
		if _, err := tx.InsertRelation(ctx, actor, rel); err != nil {
			return err
		}
	}
	return nil
}

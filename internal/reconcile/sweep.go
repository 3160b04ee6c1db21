package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
)

// sweep withdraws the provider's corpus flag from references whose provider
// identifiers were absent from the batch, and retires those identifiers.
// mentioned holds the folded keys of every identifier the batch carried.
func (r *run) sweep(ctx context.Context, mentioned map[string]bool) error {
	if r.provider.Prefix == "" {
		return nil
	}
	stale := false
	for _, o := range r.graph.ForPrefix(r.provider.Prefix) {
		if !mentioned[o.Identifier.Key()] {
			stale = true
			break
		}
	}
	if !stale {
		return nil
	}

	var withdrawn []string
	var forget []reference.Identifier
	mark := r.graph.Mark()
	err := r.e.db.WithTx(ctx, func(tx *storage.Tx) error {
		candidates, err := tx.ProviderCorpus(ctx, r.provider.Name, r.provider.Prefix)
		if err != nil {
			return err
		}

		// A reference stays in the corpus if any of its provider identifiers
		// was submitted.
		type entry struct {
			kept bool
			ids  []reference.Identifier
		}
		byRef := make(map[int64]*entry)
		var order []int64
		for _, c := range candidates {
			e, ok := byRef[c.ReferenceID]
			if !ok {
				e = &entry{}
				byRef[c.ReferenceID] = e
				order = append(order, c.ReferenceID)
			}
			id, err := reference.ParseCurie(c.Identifier)
			if err != nil || mentioned[id.Key()] {
				e.kept = true
				continue
			}
			e.ids = append(e.ids, id)
		}

		for _, refID := range order {
			e := byRef[refID]
			if e.kept {
				continue
			}
			if err := tx.SetCorpusFlag(ctx, r.actor, refID, r.provider.Name, false); err != nil {
				return err
			}
			// Hashes may be keyed by any identifier of the record, not just
			// the provider's own.
			forget = append(forget, r.graph.Identifiers(refID)...)
			for _, id := range e.ids {
				if err := r.graph.MarkObsolete(ctx, tx, r.actor, refID, id); err != nil {
					return err
				}
				withdrawn = append(withdrawn, id.Curie())
			}
		}

		return nil
	})
	if err != nil {
		r.graph.RollbackTo(mark)
		return err
	}

	// A withdrawn record must be reprocessed if the provider sends it again
	// unchanged, so its hash goes too.
	for _, id := range forget {
		if err := r.e.detector.Forget(ctx, r.provider.Name, id.Curie()); err != nil {
			r.log.Warn("forgetting content hash failed", zap.String("identifier", id.Curie()), zap.Error(err))
		}
	}

	r.report.OutOfCorpus = append(r.report.OutOfCorpus, withdrawn...)
	r.report.Stats.OutOfCorpus += len(withdrawn)
	if len(withdrawn) > 0 {
		r.log.Info("identifiers left the provider corpus", zap.Int("count", len(withdrawn)))
	}
	return nil
}

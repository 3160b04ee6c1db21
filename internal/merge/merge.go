// Package merge retires duplicate canonical references into a survivor,
// moving their identifiers and child rows and leaving a redirect behind.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/logging"
	"github.com/litcat/litrec/internal/metrics"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
)

// Merge refusals.
var (
	ErrSelfMerge       = errors.New("cannot merge a reference into itself")
	ErrObsoleteRetired = errors.New("reference was already merged into a different record")
	ErrSurvivorRetired = errors.New("surviving reference has been retired")
)

// Merge outcomes used for metrics.
const (
	OutcomeMerged        = "merged"
	OutcomeAlreadyMerged = "already_merged"
	OutcomeRefused       = "refused"
	OutcomeFailed        = "failed"
)

// Options configures an Operator.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Operator merges references in one database.
type Operator struct {
	db      *storage.DB
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns an Operator.
func New(db *storage.DB, opts Options) *Operator {
	return &Operator{db: db, log: logging.OrNop(opts.Logger), metrics: opts.Metrics}
}

// Moved counts the child rows re-pointed by a merge.
type Moved struct {
	Identifiers    int `json:"identifiers"`
	Authors        int `json:"authors"`
	MeshTerms      int `json:"mesh_terms"`
	ReferenceTypes int `json:"reference_types"`
	Corpus         int `json:"corpus_associations"`
	Relations      int `json:"relations"`
}

// Result describes a finished merge.
type Result struct {
	Obsolete      string            `json:"obsolete"`
	Survivor      string            `json:"survivor"`
	AlreadyMerged bool              `json:"already_merged,omitempty"`
	Moved         Moved             `json:"moved"`
	Conflicts     []*conflict.Error `json:"conflicts,omitempty"`
}

// Merge retires obsoleteCurie into survivingCurie in a single transaction.
// Identifiers that would break per-prefix uniqueness on the survivor stay on
// the retired record, flagged obsolete, and are listed in Result.Conflicts.
// Merging a record already merged into the same survivor is a no-op.
func (o *Operator) Merge(ctx context.Context, actor, obsoleteCurie, survivingCurie string) (*Result, error) {
	if actor == "" {
		return nil, storage.ErrMissingActor
	}
	log := o.log.With(zap.String("obsolete", obsoleteCurie), zap.String("survivor", survivingCurie))
	res := &Result{Obsolete: obsoleteCurie, Survivor: survivingCurie}

	err := o.db.WithTx(ctx, func(tx *storage.Tx) error {
		res.Moved = Moved{}
		res.Conflicts = nil

		ob, err := tx.GetReferenceByCurie(ctx, obsoleteCurie)
		if err != nil {
			return err
		}
		sv, err := tx.GetReferenceByCurie(ctx, survivingCurie)
		if err != nil {
			return err
		}
		if ob.ID == sv.ID {
			return fmt.Errorf("%s: %w", obsoleteCurie, ErrSelfMerge)
		}
		if ob.Obsolete() {
			final, _, err := tx.ResolveCurie(ctx, obsoleteCurie)
			if err != nil {
				return err
			}
			if final.ID == sv.ID {
				res.AlreadyMerged = true
				return nil
			}
			return fmt.Errorf("%s resolves to %s: %w", obsoleteCurie, final.Curie, ErrObsoleteRetired)
		}
		if sv.Obsolete() {
			return fmt.Errorf("%s: %w", survivingCurie, ErrSurvivorRetired)
		}
		return o.merge(ctx, tx, actor, ob, sv, res)
	})

	switch {
	case err == nil && res.AlreadyMerged:
		o.metrics.Merge(OutcomeAlreadyMerged)
		log.Info("references already merged")
		return res, nil
	case err == nil:
		o.metrics.Merge(OutcomeMerged)
		log.Info("references merged",
			zap.Int("identifiers", res.Moved.Identifiers),
			zap.Int("conflicts", len(res.Conflicts)))
		return res, nil
	case IsRefusal(err):
		o.metrics.Merge(OutcomeRefused)
		log.Warn("merge refused", zap.Error(err))
		return nil, err
	default:
		o.metrics.Merge(OutcomeFailed)
		log.Error("merge failed", zap.Error(err))
		return nil, err
	}
}

// IsRefusal reports whether err is a merge that was rejected as invalid
// rather than one that failed.
func IsRefusal(err error) bool {
	return errors.Is(err, ErrSelfMerge) ||
		errors.Is(err, ErrObsoleteRetired) ||
		errors.Is(err, ErrSurvivorRetired) ||
		errors.Is(err, storage.ErrNotFound)
}

func (o *Operator) merge(ctx context.Context, tx *storage.Tx, actor string, ob, sv *reference.Reference, res *Result) error {
	if err := moveIdentifiers(ctx, tx, actor, ob, sv, res); err != nil {
		return err
	}

	if len(sv.Authors) == 0 {
		for _, a := range ob.Authors {
			if err := tx.MoveRow(ctx, actor, storage.TableAuthors, a.ID, ob.ID, sv.ID); err != nil {
				return err
			}
			res.Moved.Authors++
		}
	}

	terms := make(map[[2]string]bool, len(sv.MeshTerms))
	for _, m := range sv.MeshTerms {
		terms[m.Key()] = true
	}
	for _, m := range ob.MeshTerms {
		if terms[m.Key()] {
			continue
		}
		if err := tx.MoveRow(ctx, actor, storage.TableMeshTerms, m.ID, ob.ID, sv.ID); err != nil {
			return err
		}
		terms[m.Key()] = true
		res.Moved.MeshTerms++
	}

	types := make(map[string]bool, len(sv.ModReferenceTypes))
	for _, m := range sv.ModReferenceTypes {
		types[typeKey(m)] = true
	}
	for _, m := range ob.ModReferenceTypes {
		if types[typeKey(m)] {
			continue
		}
		if err := tx.MoveRow(ctx, actor, storage.TableModReferenceTypes, m.ID, ob.ID, sv.ID); err != nil {
			return err
		}
		types[typeKey(m)] = true
		res.Moved.ReferenceTypes++
	}

	for _, ca := range ob.CorpusAssociations {
		existing, ok := sv.Corpus(ca.Provider)
		switch {
		case !ok:
			if err := tx.MoveRow(ctx, actor, storage.TableCorpusAssociations, ca.ID, ob.ID, sv.ID); err != nil {
				return err
			}
			res.Moved.Corpus++
		case ca.Corpus && !existing.Corpus:
			if err := tx.SetCorpusFlag(ctx, actor, sv.ID, ca.Provider, true); err != nil {
				return err
			}
			res.Moved.Corpus++
		}
	}

	if err := repointRelations(ctx, tx, actor, ob, sv, res); err != nil {
		return err
	}

	return tx.RetireReference(ctx, actor, ob, sv)
}

// moveIdentifiers re-points the retired record's identifiers. Obsolete rows
// move as they are. A valid identifier the survivor already holds is retired
// in place; one whose prefix the survivor already carries with another value
// is retired in place and reported.
func moveIdentifiers(ctx context.Context, tx *storage.Tx, actor string, ob, sv *reference.Reference, res *Result) error {
	held := make(map[string]bool)
	prefixes := make(map[string]reference.Identifier)
	for _, id := range sv.ValidIdentifiers() {
		held[id.Key()] = true
		prefixes[strings.ToUpper(id.Prefix)] = id
	}

	for _, x := range ob.CrossReferences {
		if x.Obsolete {
			if err := tx.MoveCrossReference(ctx, actor, x.ID, ob.ID, sv.ID, true); err != nil {
				return err
			}
			res.Moved.Identifiers++
			continue
		}

		if held[x.Identifier.Key()] {
			if err := tx.SetIdentifierObsolete(ctx, actor, ob.ID, x.Identifier); err != nil {
				return err
			}
			continue
		}

		p := strings.ToUpper(x.Identifier.Prefix)
		if other, ok := prefixes[p]; ok && !reference.IsMultiValued(p) {
			if err := tx.SetIdentifierObsolete(ctx, actor, ob.ID, x.Identifier); err != nil {
				return err
			}
			res.Conflicts = append(res.Conflicts,
				conflict.New(conflict.MergeUniquenessViolation, x.Identifier.Curie(),
					"survivor already holds %s", other.Curie()).WithCuries(ob.Curie, sv.Curie))
			continue
		}

		if err := tx.MoveCrossReference(ctx, actor, x.ID, ob.ID, sv.ID, false); err != nil {
			return err
		}
		held[x.Identifier.Key()] = true
		prefixes[p] = x.Identifier
		res.Moved.Identifiers++
	}
	return nil
}

// repointRelations rewrites edges touching the retired record to the
// survivor. Edges that would become self-loops or duplicate an existing edge
// are deleted.
func repointRelations(ctx context.Context, tx *storage.Tx, actor string, ob, sv *reference.Reference, res *Result) error {
	existing := make(map[reference.RelationKey]bool, len(sv.Relations))
	for _, rel := range sv.Relations {
		existing[rel.Key()] = true
	}

	for _, rel := range ob.Relations {
		moved := rel
		if moved.SourceID == ob.ID {
			moved.SourceID = sv.ID
		}
		if moved.TargetID == ob.ID {
			moved.TargetID = sv.ID
		}
		if moved.SourceID == moved.TargetID || existing[moved.Key()] {
			if err := tx.DeleteRelation(ctx, actor, rel); err != nil {
				return err
			}
			continue
		}
		if err := tx.RepointRelation(ctx, actor, moved); err != nil {
			return err
		}
		existing[moved.Key()] = true
		res.Moved.Relations++
	}
	return nil
}

func typeKey(m reference.ModReferenceType) string {
	return strings.ToLower(m.Provider) + "\x00" + strings.ToLower(m.Type)
}

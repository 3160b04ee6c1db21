package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
	"github.com/litcat/litrec/internal/xref"
)

// Resolution is the surviving record for a curie and the redirect chain that
// led to it.
type Resolution struct {
	Reference *reference.Reference `json:"reference"`
	Chain     []string             `json:"chain"`
	Via       string               `json:"via,omitempty"` // external identifier used for the lookup
}

// Resolve returns the active reference for a reference curie, following merge
// redirects. Curies that name no reference are looked up as external
// identifiers.
func (o *Operator) Resolve(ctx context.Context, curie string) (*Resolution, error) {
	ref, chain, err := o.db.ResolveCurie(ctx, curie)
	if err == nil {
		return &Resolution{Reference: ref, Chain: chain}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	id, perr := reference.ParseCurie(curie)
	if perr != nil {
		return nil, err
	}
	rows, err := o.db.LoadCrossReferences(ctx)
	if err != nil {
		return nil, err
	}
	owners := xref.Build(rows).ResolveAll(id)
	switch len(owners) {
	case 0:
		return nil, fmt.Errorf("%s: %w", curie, storage.ErrNotFound)
	case 1:
		ref, err := o.db.GetReference(ctx, owners[0])
		if err != nil {
			return nil, err
		}
		return &Resolution{Reference: ref, Chain: []string{ref.Curie}, Via: id.Curie()}, nil
	default:
		curies, err := o.curies(ctx, owners)
		if err != nil {
			return nil, err
		}
		return nil, conflict.New(conflict.MultiCanonicalMatch, id.Curie(),
			"identifier held by %d references", len(owners)).WithCuries(curies...)
	}
}

// History returns the version log of the record curie resolves to, together
// with every record merged into it.
func (o *Operator) History(ctx context.Context, curie string) ([]storage.Version, error) {
	res, err := o.Resolve(ctx, curie)
	if err != nil {
		return nil, err
	}
	ids, err := o.db.MergedInto(ctx, res.Reference.ID)
	if err != nil {
		return nil, err
	}
	return o.db.History(ctx, ids...)
}

// Candidate is a group of active references that hold the same identifier
// under case folding.
type Candidate struct {
	Identifier string   `json:"identifier"`
	IDs        []int64  `json:"ids"`
	Curies     []string `json:"curies"`
}

// FindCandidates returns groups of probable duplicates for curator review,
// sorted by identifier.
func (o *Operator) FindCandidates(ctx context.Context) ([]Candidate, error) {
	rows, err := o.db.LoadCrossReferences(ctx)
	if err != nil {
		return nil, err
	}
	collisions := xref.Build(rows).Collisions()

	out := make([]Candidate, 0, len(collisions))
	for key, owners := range collisions {
		curies, err := o.curies(ctx, owners)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Identifier: key, IDs: owners, Curies: curies})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// MergeCandidate merges every member of c into its lowest-id member. Members
// already retired by an earlier merge are resolved first, so overlapping
// groups can be processed in sequence.
func (o *Operator) MergeCandidate(ctx context.Context, actor string, c Candidate) ([]*Result, error) {
	if len(c.Curies) < 2 {
		return nil, nil
	}
	survivor, _, err := o.db.ResolveCurie(ctx, c.Curies[0])
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, curie := range c.Curies[1:] {
		member, _, err := o.db.ResolveCurie(ctx, curie)
		if err != nil {
			return results, err
		}
		if member.ID == survivor.ID {
			continue
		}
		res, err := o.Merge(ctx, actor, member.Curie, survivor.Curie)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (o *Operator) curies(ctx context.Context, ids []int64) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		ref, err := o.db.GetReference(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = ref.Curie
	}
	return out, nil
}

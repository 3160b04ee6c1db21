// Package xref maintains the run-local index between external identifiers and
// canonical references.
package xref

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/reference"
)

// ErrOwnedElsewhere is returned when attaching an identifier that is already
// valid on a different reference.
var ErrOwnedElsewhere = errors.New("identifier is owned by another reference")

// Writer persists identifier changes. Implemented by storage.Tx.
type Writer interface {
	AttachIdentifier(ctx context.Context, actor string, referenceID int64, id reference.Identifier) error
	SetIdentifierObsolete(ctx context.Context, actor string, referenceID int64, id reference.Identifier) error
}

// Owned is an identifier together with the reference it is attached to.
type Owned struct {
	ReferenceID int64
	Identifier  reference.Identifier
}

// Graph indexes cross references for one reconciliation run. Lookups are
// case-insensitive. A Graph is not safe for concurrent use; parallel workers
// each build their own.
type Graph struct {
	byKey    map[string][]int64                        // folded curie -> owners (valid only)
	retired  map[string][]int64                        // folded curie -> owners (obsolete only)
	valid    map[int64]map[string][]reference.Identifier // owner -> upper prefix -> ids
	obsolete map[int64]map[string]map[string]bool        // owner -> upper prefix -> folded ids

	journal []op
}

type opKind int

const (
	opAdd opKind = iota
	opObsolete
	opRevive
)

type op struct {
	kind  opKind
	owner int64
	id    reference.Identifier
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byKey:    make(map[string][]int64),
		retired:  make(map[string][]int64),
		valid:    make(map[int64]map[string][]reference.Identifier),
		obsolete: make(map[int64]map[string]map[string]bool),
	}
}

// Build indexes rows from a full scan of the identifier table.
func Build(rows []reference.CrossReference) *Graph {
	g := New()
	for _, r := range rows {
		if r.Obsolete {
			g.setObsolete(r.ReferenceID, r.Identifier)
		} else {
			g.addValid(r.ReferenceID, r.Identifier)
		}
	}
	g.journal = nil
	return g
}

// Resolve returns the reference owning id. When a case-folded collision gives
// several owners, the lowest id is returned; use ResolveAll to detect that.
func (g *Graph) Resolve(id reference.Identifier) (int64, bool) {
	owners := g.byKey[id.Key()]
	if len(owners) == 0 {
		return 0, false
	}
	return owners[0], true
}

// ResolveAll returns every reference holding id as a valid identifier.
func (g *Graph) ResolveAll(id reference.Identifier) []int64 {
	owners := g.byKey[id.Key()]
	out := make([]int64, len(owners))
	copy(out, owners)
	return out
}

// ResolveRetired returns every reference holding id only as an obsolete
// identifier.
func (g *Graph) ResolveRetired(id reference.Identifier) []int64 {
	owners := g.retired[id.Key()]
	out := make([]int64, len(owners))
	copy(out, owners)
	return out
}

// HasPrefix reports whether the reference has a valid identifier with prefix.
func (g *Graph) HasPrefix(owner int64, prefix string) bool {
	return len(g.valid[owner][strings.ToUpper(prefix)]) > 0
}

// Values returns the reference's valid identifiers for prefix.
func (g *Graph) Values(owner int64, prefix string) []reference.Identifier {
	return g.valid[owner][strings.ToUpper(prefix)]
}

// IsObsolete reports whether id was once attached to the reference and has
// been retired.
func (g *Graph) IsObsolete(owner int64, id reference.Identifier) bool {
	return g.obsolete[owner][strings.ToUpper(id.Prefix)][strings.ToLower(id.ID)]
}

// Identifiers returns the reference's valid identifiers sorted by curie.
func (g *Graph) Identifiers(owner int64) []reference.Identifier {
	var out []reference.Identifier
	for _, ids := range g.valid[owner] {
		out = append(out, ids...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Curie() < out[j].Curie() })
	return out
}

// ForPrefix returns every valid identifier with prefix, sorted by curie.
func (g *Graph) ForPrefix(prefix string) []Owned {
	p := strings.ToUpper(prefix)
	var out []Owned
	for owner, byPrefix := range g.valid {
		for _, id := range byPrefix[p] {
			out = append(out, Owned{ReferenceID: owner, Identifier: id})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Identifier.Curie() != out[j].Identifier.Curie() {
			return out[i].Identifier.Curie() < out[j].Identifier.Curie()
		}
		return out[i].ReferenceID < out[j].ReferenceID
	})
	return out
}

// Collisions returns identifier keys that more than one reference holds as
// valid (possible only through case variants), sorted by key.
func (g *Graph) Collisions() map[string][]int64 {
	out := make(map[string][]int64)
	for k, owners := range g.byKey {
		if len(owners) > 1 {
			out[k] = append([]int64(nil), owners...)
		}
	}
	return out
}

// CheckAttach reports whether id could be attached to owner without
// violating ownership or per-prefix uniqueness. A nil error with already=true
// means the identifier is attached and Attach would be a no-op.
func (g *Graph) CheckAttach(owner int64, id reference.Identifier) (already bool, err error) {
	if g.holds(owner, id) {
		return true, nil
	}
	if len(g.byKey[id.Key()]) > 0 {
		return false, fmt.Errorf("%w: %s", ErrOwnedElsewhere, id.Curie())
	}
	if !reference.IsMultiValued(id.Prefix) {
		if existing := g.Values(owner, id.Prefix); len(existing) > 0 {
			return false, conflict.New(conflict.PrefixConflictAgainstCanonical, id.Curie(),
				"reference already has %s", existing[0].Curie())
		}
	}
	return false, nil
}

// Attach persists id on owner through w and indexes it. Attaching an
// identifier the reference already holds is a no-op; one it holds as obsolete
// is revived.
func (g *Graph) Attach(ctx context.Context, w Writer, actor string, owner int64, id reference.Identifier) error {
	already, err := g.CheckAttach(owner, id)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	if err := w.AttachIdentifier(ctx, actor, owner, id); err != nil {
		return fmt.Errorf("attaching %s: %w", id.Curie(), err)
	}
	if g.IsObsolete(owner, id) {
		g.clearObsolete(owner, id)
		g.insertValid(owner, id)
		g.journal = append(g.journal, op{kind: opRevive, owner: owner, id: id})
		return nil
	}
	g.addValid(owner, id)
	return nil
}

// MarkObsolete persists the retirement of id on owner through w and moves it
// to the obsolete index.
func (g *Graph) MarkObsolete(ctx context.Context, w Writer, actor string, owner int64, id reference.Identifier) error {
	if !g.holds(owner, id) {
		return nil
	}
	if err := w.SetIdentifierObsolete(ctx, actor, owner, id); err != nil {
		return fmt.Errorf("retiring %s: %w", id.Curie(), err)
	}
	g.removeValid(owner, id)
	g.setObsolete(owner, id)
	g.journal = append(g.journal, op{kind: opObsolete, owner: owner, id: id})
	return nil
}

// Mark returns a position in the change journal for RollbackTo.
func (g *Graph) Mark() int {
	return len(g.journal)
}

// RollbackTo undoes in-memory changes made after mark, keeping the index in
// step with a rolled-back transaction.
func (g *Graph) RollbackTo(mark int) {
	for i := len(g.journal) - 1; i >= mark; i-- {
		o := g.journal[i]
		switch o.kind {
		case opAdd:
			g.removeValid(o.owner, o.id)
		case opObsolete:
			g.clearObsolete(o.owner, o.id)
			g.insertValid(o.owner, o.id)
		case opRevive:
			g.removeValid(o.owner, o.id)
			g.setObsolete(o.owner, o.id)
		}
	}
	g.journal = g.journal[:mark]
}

func (g *Graph) holds(owner int64, id reference.Identifier) bool {
	for _, o := range g.byKey[id.Key()] {
		if o == owner {
			return true
		}
	}
	return false
}

func (g *Graph) addValid(owner int64, id reference.Identifier) {
	if g.holds(owner, id) {
		return
	}
	g.insertValid(owner, id)
	g.journal = append(g.journal, op{kind: opAdd, owner: owner, id: id})
}

func (g *Graph) insertValid(owner int64, id reference.Identifier) {
	k := id.Key()
	owners := append(g.byKey[k], owner)
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	g.byKey[k] = owners

	p := strings.ToUpper(id.Prefix)
	if g.valid[owner] == nil {
		g.valid[owner] = make(map[string][]reference.Identifier)
	}
	g.valid[owner][p] = append(g.valid[owner][p], id)
}

func (g *Graph) removeValid(owner int64, id reference.Identifier) {
	k := id.Key()
	owners := g.byKey[k]
	for i, o := range owners {
		if o == owner {
			owners = append(owners[:i:i], owners[i+1:]...)
			break
		}
	}
	if len(owners) == 0 {
		delete(g.byKey, k)
	} else {
		g.byKey[k] = owners
	}

	p := strings.ToUpper(id.Prefix)
	ids := g.valid[owner][p]
	for i, v := range ids {
		if v.Equal(id) {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(g.valid[owner], p)
	} else {
		g.valid[owner][p] = ids
	}
}

func (g *Graph) setObsolete(owner int64, id reference.Identifier) {
	p := strings.ToUpper(id.Prefix)
	if g.obsolete[owner] == nil {
		g.obsolete[owner] = make(map[string]map[string]bool)
	}
	if g.obsolete[owner][p] == nil {
		g.obsolete[owner][p] = make(map[string]bool)
	}
	g.obsolete[owner][p][strings.ToLower(id.ID)] = true

	k := id.Key()
	for _, o := range g.retired[k] {
		if o == owner {
			return
		}
	}
	owners := append(g.retired[k], owner)
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	g.retired[k] = owners
}

func (g *Graph) clearObsolete(owner int64, id reference.Identifier) {
	p := strings.ToUpper(id.Prefix)
	delete(g.obsolete[owner][p], strings.ToLower(id.ID))

	k := id.Key()
	owners := g.retired[k]
	for i, o := range owners {
		if o == owner {
			owners = append(owners[:i:i], owners[i+1:]...)
			break
		}
	}
	if len(owners) == 0 {
		delete(g.retired, k)
	} else {
		g.retired[k] = owners
	}
}

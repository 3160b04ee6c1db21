package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/litcat/litrec/internal/reference"
)

// MaxRedirectDepth bounds how many merge redirects ResolveCurie follows.
const MaxRedirectDepth = 64

// ErrRedirectLoop is returned when merge redirects do not terminate.
var ErrRedirectLoop = errors.New("merge redirect chain does not terminate")

// selectRefFields contains the standard field list for SELECT queries.
const selectRefFields = `id, curie, title, category, volume, page_range, abstract,
	language, publisher, issue_name, date_published, date_published_start,
	date_published_end, COALESCE(merged_into, 0)`

// BiblioChange is one scalar field assignment.
type BiblioChange struct {
	Field reference.Field `json:"field"`
	Old   string          `json:"old"`
	New   string          `json:"new"`
}

// CreateReference inserts a new reference with a freshly generated curie.
func (t *Tx) CreateReference(ctx context.Context, actor string, b reference.Biblio) (reference.Reference, error) {
	if actor == "" {
		return reference.Reference{}, ErrMissingActor
	}
	seq, curie, err := t.nextCurie(ctx)
	if err != nil {
		return reference.Reference{}, err
	}
	now := t.d.timestamp()
	id, err := t.insert(ctx, `
		INSERT INTO refs (curie, curie_seq, title, category, volume, page_range, abstract,
			language, publisher, issue_name, date_published, date_published_start,
			date_published_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		curie, seq, b.Title, b.Category, b.Volume, b.PageRange, b.Abstract,
		b.Language, b.Publisher, b.IssueName, b.DatePublished, b.DatePublishedStart,
		b.DatePublishedEnd, now, now)
	if err != nil {
		return reference.Reference{}, fmt.Errorf("inserting reference: %w", err)
	}

	ref := reference.Reference{ID: id, Curie: curie, Biblio: b}
	if err := t.record(ctx, actor, "refs", id, id, ActionCreate, ref); err != nil {
		return reference.Reference{}, err
	}
	return ref, nil
}

// nextCurie returns the next curie sequence number and curie, skipping any
// curie already used by a retired record.
func (t *Tx) nextCurie(ctx context.Context) (int64, string, error) {
	var seq int64
	if err := t.queryRow(ctx, `SELECT COALESCE(MAX(curie_seq), 0) FROM refs`).Scan(&seq); err != nil {
		return 0, "", fmt.Errorf("reading curie sequence: %w", err)
	}
	for {
		seq++
		curie := FormatCurie(t.d.curiePrefix, seq)
		var n int
		if err := t.queryRow(ctx, `SELECT COUNT(*) FROM obsolete_references WHERE curie = ?`, curie).Scan(&n); err != nil {
			return 0, "", fmt.Errorf("checking obsolete curies: %w", err)
		}
		if n == 0 {
			return seq, curie, nil
		}
	}
}

// FormatCurie renders a reference curie such as AGR:AGR-Reference-0000000001.
func FormatCurie(prefix string, seq int64) string {
	return fmt.Sprintf("%s:%s-Reference-%010d", prefix, prefix, seq)
}

// UpdateBiblio applies scalar field changes to a reference.
func (t *Tx) UpdateBiblio(ctx context.Context, actor string, referenceID int64, changes []BiblioChange) error {
	if len(changes) == 0 {
		return nil
	}
	if actor == "" {
		return ErrMissingActor
	}

	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for _, c := range changes {
		if !knownField(c.Field) {
			return fmt.Errorf("unknown biblio field %q", c.Field)
		}
		sets = append(sets, string(c.Field)+" = ?")
		args = append(args, c.New)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, t.d.timestamp(), referenceID)

	res, err := t.exec(ctx, `UPDATE refs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating reference %d: %w", referenceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reference %d: %w", referenceID, ErrNotFound)
	}
	return t.record(ctx, actor, "refs", referenceID, referenceID, ActionUpdate, changes)
}

func knownField(f reference.Field) bool {
	for _, k := range reference.BiblioFields {
		if k == f {
			return true
		}
	}
	return false
}

func scanReference(row interface{ Scan(...any) error }) (reference.Reference, error) {
	var r reference.Reference
	err := row.Scan(&r.ID, &r.Curie, &r.Biblio.Title, &r.Biblio.Category, &r.Biblio.Volume,
		&r.Biblio.PageRange, &r.Biblio.Abstract, &r.Biblio.Language, &r.Biblio.Publisher,
		&r.Biblio.IssueName, &r.Biblio.DatePublished, &r.Biblio.DatePublishedStart,
		&r.Biblio.DatePublishedEnd, &r.MergedInto)
	return r, err
}

// GetReference returns the reference with all child collections.
func (r reader) GetReference(ctx context.Context, id int64) (*reference.Reference, error) {
	ref, err := scanReference(r.queryRow(ctx, `SELECT `+selectRefFields+` FROM refs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reference %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying reference %d: %w", id, err)
	}
	if err := r.loadChildren(ctx, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetReferenceByCurie returns the reference with exactly this curie, without
// following merge redirects.
func (r reader) GetReferenceByCurie(ctx context.Context, curie string) (*reference.Reference, error) {
	var id int64
	err := r.queryRow(ctx, `SELECT id FROM refs WHERE curie = ?`, curie).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reference %s: %w", curie, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying reference %s: %w", curie, err)
	}
	return r.GetReference(ctx, id)
}

// ResolveCurie looks up a reference curie and follows merge redirects to the
// surviving record. The returned chain lists every curie visited, starting
// with the input.
func (r reader) ResolveCurie(ctx context.Context, curie string) (*reference.Reference, []string, error) {
	chain := []string{curie}

	var id int64
	err := r.queryRow(ctx, `SELECT id FROM refs WHERE curie = ?`, curie).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Curies retired before this store existed only live in the redirect table.
		err = r.queryRow(ctx, `SELECT new_id FROM obsolete_references WHERE curie = ?`, curie).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chain, fmt.Errorf("reference %s: %w", curie, ErrNotFound)
	}
	if err != nil {
		return nil, chain, fmt.Errorf("resolving %s: %w", curie, err)
	}

	for depth := 0; depth <= MaxRedirectDepth; depth++ {
		ref, err := r.GetReference(ctx, id)
		if err != nil {
			return nil, chain, err
		}
		if ref.Curie != chain[len(chain)-1] {
			chain = append(chain, ref.Curie)
		}
		if !ref.Obsolete() {
			return ref, chain, nil
		}
		id = ref.MergedInto
	}
	return nil, chain, fmt.Errorf("%s: %w", curie, ErrRedirectLoop)
}

// MergedInto returns the ids of every reference whose redirect chain ends at
// id, including id itself.
func (r reader) MergedInto(ctx context.Context, id int64) ([]int64, error) {
	out := []int64{id}
	seen := map[int64]bool{id: true}
	for i := 0; i < len(out); i++ {
		rows, err := r.query(ctx, `SELECT id FROM refs WHERE merged_into = ?`, out[i])
		if err != nil {
			return nil, fmt.Errorf("querying merged references: %w", err)
		}
		for rows.Next() {
			var m int64
			if err := rows.Scan(&m); err != nil {
				_ = rows.Close()
				return nil, err
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountReferences returns the number of active and retired references.
func (r reader) CountReferences(ctx context.Context) (active, retired int, err error) {
	err = r.queryRow(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN merged_into IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN merged_into IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM refs`).Scan(&active, &retired)
	if err != nil {
		return 0, 0, fmt.Errorf("counting references: %w", err)
	}
	return active, retired, nil
}

func (r reader) loadChildren(ctx context.Context, ref *reference.Reference) error {
	var err error
	if ref.CrossReferences, err = r.crossReferencesFor(ctx, ref.ID); err != nil {
		return err
	}
	if ref.Authors, err = r.authorsFor(ctx, ref.ID); err != nil {
		return err
	}
	if ref.MeshTerms, err = r.meshTermsFor(ctx, ref.ID); err != nil {
		return err
	}
	if ref.ModReferenceTypes, err = r.modReferenceTypesFor(ctx, ref.ID); err != nil {
		return err
	}
	if ref.CorpusAssociations, err = r.corpusAssociationsFor(ctx, ref.ID); err != nil {
		return err
	}
	if ref.Relations, err = r.relationsFor(ctx, ref.ID); err != nil {
		return err
	}
	return nil
}

package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"

	"github.com/litcat/litrec/internal/changes"
	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/storage"
	"github.com/litcat/litrec/internal/submission"
)

const testActor = "reconcile-test"

var (
	wb     = Provider{Name: "WB", Prefix: "WB"}
	zfin   = Provider{Name: "ZFIN", Prefix: "ZFIN"}
	pubmed = Provider{Name: "PubMed", Prefix: "PMID"}
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEngine(db *storage.DB, opts Options) *Engine {
	if opts.Providers == nil {
		opts.Providers = []Provider{wb, zfin, pubmed}
	}
	return New(db, opts)
}

// rec builds a submission for provider p with the given title and
// identifiers; the first identifier is the primary one.
func rec(p Provider, title string, curies ...string) submission.Record {
	r := submission.Record{
		Primary: reference.MustParseCurie(curies[0]),
		Scalars: reference.Biblio{Title: title, DatePublished: "2020"},
		PerProvider: submission.PerProvider{
			CorpusAssociations: []reference.CorpusAssociation{
				{Provider: p.Name, Corpus: true, Source: reference.SourceProviderFiles},
			},
		},
	}
	for _, c := range curies {
		r.Identifiers = append(r.Identifiers, reference.MustParseCurie(c))
	}
	return r
}

func mustRun(t *testing.T, e *Engine, p Provider, records ...submission.Record) *Report {
	t.Helper()
	report, err := e.Run(context.Background(), testActor, p, records)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return report
}

func resolve(t *testing.T, db *storage.DB, curie string) *reference.Reference {
	t.Helper()
	rows, err := db.LoadCrossReferences(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := reference.MustParseCurie(curie)
	for _, x := range rows {
		if !x.Obsolete && x.Identifier.Equal(want) {
			ref, err := db.GetReference(context.Background(), x.ReferenceID)
			if err != nil {
				t.Fatal(err)
			}
			return ref
		}
	}
	t.Fatalf("no reference holds %s", curie)
	return nil
}

// holder returns the reference holding curie, valid or obsolete, and whether
// the identifier is obsolete there.
func holder(t *testing.T, db *storage.DB, curie string) (*reference.Reference, bool) {
	t.Helper()
	rows, err := db.LoadCrossReferences(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := reference.MustParseCurie(curie)
	for _, x := range rows {
		if x.Identifier.Equal(want) {
			ref, err := db.GetReference(context.Background(), x.ReferenceID)
			if err != nil {
				t.Fatal(err)
			}
			return ref, x.Obsolete
		}
	}
	t.Fatalf("no reference holds %s", curie)
	return nil, false
}

func countRefs(t *testing.T, db *storage.DB) int {
	t.Helper()
	active, _, err := db.CountReferences(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return active
}

func TestRun_CreatesReferences(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})

	report := mustRun(t, e, wb,
		rec(wb, "Worm paper", "WB:WBPaper1", "PMID:100", "DOI:10.1/a"),
		rec(wb, "Another worm paper", "WB:WBPaper2"),
	)

	if report.Stats.Created != 2 {
		t.Fatalf("created = %d, want 2 (report %+v)", report.Stats.Created, report)
	}
	if report.RunID == "" {
		t.Error("report has no run id")
	}
	ref := resolve(t, db, "PMID:100")
	if ref.Biblio.Title != "Worm paper" {
		t.Errorf("title = %q", ref.Biblio.Title)
	}
	if ref.Biblio.DatePublishedStart != "2020-01-01" || ref.Biblio.DatePublishedEnd != "2020-12-31" {
		t.Errorf("date range = %s..%s", ref.Biblio.DatePublishedStart, ref.Biblio.DatePublishedEnd)
	}
	if len(ref.ValidIdentifiers()) != 3 {
		t.Errorf("identifiers = %v, want 3", ref.ValidIdentifiers())
	}
	if ca, ok := ref.Corpus("WB"); !ok || !ca.Corpus {
		t.Errorf("WB corpus association = %+v, %v", ca, ok)
	}

	hashes, err := db.ListHashes(context.Background(), "WB")
	if err != nil || len(hashes) != 2 {
		t.Errorf("stored hashes = %d, %v; want 2", len(hashes), err)
	}
}

func TestRun_SkipsUnchanged(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	r := rec(wb, "Worm paper", "WB:WBPaper1")

	mustRun(t, e, wb, r)
	second := mustRun(t, e, wb, r)
	if second.Stats.Unchanged != 1 || second.Stats.Created != 0 {
		t.Errorf("second run stats = %+v, want 1 unchanged", second.Stats)
	}

	again := newEngine(db, Options{ReaggregateUnchanged: true})
	third := mustRun(t, again, wb, r)
	if third.Stats.Matched != 1 {
		t.Errorf("reaggregate stats = %+v, want 1 matched", third.Stats)
	}
	if countRefs(t, db) != 1 {
		t.Errorf("references = %d, want 1", countRefs(t, db))
	}
}

func TestRun_ChangedRecordUpdates(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})

	mustRun(t, e, wb, rec(wb, "Draft title", "WB:WBPaper1"))
	report := mustRun(t, e, wb, rec(wb, "Final title", "WB:WBPaper1", "DOI:10.1/final"))

	if report.Stats.Updated != 1 {
		t.Fatalf("stats = %+v, want 1 updated", report.Stats)
	}
	ref := resolve(t, db, "WB:WBPaper1")
	if ref.Biblio.Title != "Final title" {
		t.Errorf("title = %q, want Final title", ref.Biblio.Title)
	}
	if len(ref.ValidIdentifiers()) != 2 {
		t.Errorf("identifiers = %v, want DOI attached", ref.ValidIdentifiers())
	}
}

func TestRun_WithinBatchConflictWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})

	report := mustRun(t, e, wb,
		rec(wb, "First claim", "WB:WBPaper1", "PMID:100"),
		rec(wb, "Second claim", "WB:WBPaper2", "PMID:100"),
	)

	got := report.ConflictsOf(conflict.PrefixConflictWithinSubmission)
	if len(got) != 2 {
		t.Fatalf("within-submission conflicts = %+v, want 2", report.Conflicts)
	}
	if report.Stats.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", report.Stats.Rejected)
	}
	if n := countRefs(t, db); n != 0 {
		t.Errorf("references = %d, want 0", n)
	}
	if hashes, _ := db.ListHashes(context.Background(), ""); len(hashes) != 0 {
		t.Errorf("hashes = %d, want 0", len(hashes))
	}
}

func TestRun_IdenticalDuplicatesProcessedOnce(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	r := rec(wb, "Same", "WB:WBPaper1", "PMID:100")

	report := mustRun(t, e, wb, r, r)
	if report.Stats.Created != 1 || report.Stats.Duplicates != 1 {
		t.Errorf("stats = %+v, want 1 created and 1 duplicate", report.Stats)
	}
	if len(report.Conflicts) != 0 {
		t.Errorf("conflicts = %+v", report.Conflicts)
	}
}

func TestRun_DuplicatePrefixInRecord(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})

	report := mustRun(t, e, wb, rec(wb, "Two PMIDs", "WB:WBPaper1", "PMID:1", "PMID:2"))
	if len(report.ConflictsOf(conflict.PrefixConflictWithinSubmission)) != 1 {
		t.Errorf("conflicts = %+v", report.Conflicts)
	}
	if countRefs(t, db) != 0 {
		t.Error("record with duplicate prefixes was written")
	}
}

func TestRun_PrefixConflictAgainstCanonical(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Worm paper", "WB:WBPaper1", "PMID:1"))

	report := mustRun(t, e, wb, rec(wb, "Worm paper v2", "WB:WBPaper1", "PMID:2"))

	got := report.ConflictsOf(conflict.PrefixConflictAgainstCanonical)
	if len(got) != 1 {
		t.Fatalf("conflicts = %+v, want one PrefixConflictAgainstCanonical", report.Conflicts)
	}
	if len(got[0].Curies) != 1 {
		t.Errorf("conflict curies = %v, want the canonical curie", got[0].Curies)
	}
	ref := resolve(t, db, "WB:WBPaper1")
	if ref.Biblio.Title != "Worm paper" {
		t.Errorf("title = %q, conflicting record was applied", ref.Biblio.Title)
	}
	if hashes, _ := db.ListHashes(context.Background(), "WB"); len(hashes) != 1 {
		t.Errorf("hashes = %d, want only the first run's", len(hashes))
	}
}

func TestRun_MultiMatch(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb,
		rec(wb, "A", "WB:WBPaper1"),
		rec(wb, "B", "WB:WBPaper2", "PMID:2"),
	)

	report := mustRun(t, e, zfin, rec(zfin, "Fish", "ZFIN:ZDB-PUB-1", "WB:WBPaper1", "PMID:2"))

	got := report.ConflictsOf(conflict.MultiCanonicalMatch)
	if len(got) != 1 || len(got[0].Curies) != 2 {
		t.Fatalf("conflicts = %+v, want one MultiCanonicalMatch with 2 curies", report.Conflicts)
	}
	if report.Stats.MultiMatch != 1 {
		t.Errorf("stats = %+v", report.Stats)
	}
	if countRefs(t, db) != 2 {
		t.Error("multi-match record created a reference")
	}
}

func TestRun_OutOfCorpus(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb,
		rec(wb, "Kept", "WB:WBPaper1"),
		rec(wb, "Dropped", "WB:WBPaper2"),
	)

	report := mustRun(t, e, wb, rec(wb, "Kept", "WB:WBPaper1"))

	if len(report.OutOfCorpus) != 1 || report.OutOfCorpus[0] != "WB:WBPaper2" {
		t.Fatalf("OutOfCorpus = %v, want [WB:WBPaper2]", report.OutOfCorpus)
	}
	dropped, obsolete := holder(t, db, "WB:WBPaper2")
	if ca, _ := dropped.Corpus("WB"); ca.Corpus {
		t.Error("dropped reference is still in the WB corpus")
	}
	if !obsolete {
		t.Error("withdrawn identifier is still valid")
	}
	kept := resolve(t, db, "WB:WBPaper1")
	if ca, _ := kept.Corpus("WB"); !ca.Corpus {
		t.Error("kept reference left the WB corpus")
	}

	// The flag is already false, so a repeat run lists nothing.
	again := mustRun(t, e, wb, rec(wb, "Kept", "WB:WBPaper1"))
	if len(again.OutOfCorpus) != 0 {
		t.Errorf("repeat OutOfCorpus = %v, want none", again.OutOfCorpus)
	}

	// Sending the record again revives the identifier on the same reference.
	back := mustRun(t, e, wb, rec(wb, "Kept", "WB:WBPaper1"), rec(wb, "Dropped", "WB:WBPaper2"))
	if back.Stats.Updated != 1 || back.Stats.Created != 0 {
		t.Errorf("resubmission stats = %+v, want 1 updated", back.Stats)
	}
	revived := resolve(t, db, "WB:WBPaper2")
	if revived.ID != dropped.ID || countRefs(t, db) != 2 {
		t.Errorf("resubmission landed on reference %d, want %d", revived.ID, dropped.ID)
	}
	if ca, _ := revived.Corpus("WB"); !ca.Corpus {
		t.Error("resubmitted reference is not back in the WB corpus")
	}
}

func TestRun_OutOfCorpusForgetsHashOfAnyIdentifier(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	indexed := rec(wb, "Indexed", "PMID:500", "WB:WBPaper9")
	other := rec(wb, "Other", "WB:WBPaper10")
	mustRun(t, e, wb, indexed, other)

	report := mustRun(t, e, wb, other)
	if len(report.OutOfCorpus) != 1 || report.OutOfCorpus[0] != "WB:WBPaper9" {
		t.Fatalf("OutOfCorpus = %v, want [WB:WBPaper9]", report.OutOfCorpus)
	}

	// The record's hash is keyed by its PMID, not the withdrawn WB id.
	report = mustRun(t, e, wb, indexed, other)
	if report.Stats.Updated != 1 || report.Stats.Unchanged != 1 {
		t.Fatalf("stats = %+v, want the withdrawn record reprocessed", report.Stats)
	}
	ref := resolve(t, db, "WB:WBPaper9")
	if ca, _ := ref.Corpus("WB"); !ca.Corpus {
		t.Error("corpus flag not restored")
	}
}

func TestRun_ObsoleteIdentifierResubmitted(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Worm paper", "WB:WBPaper1", "PMID:1"))
	ref := resolve(t, db, "PMID:1")

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.SetIdentifierObsolete(ctx, testActor, ref.ID, reference.MustParseCurie("WB:WBPaper1")); err != nil {
			return err
		}
		return tx.AttachIdentifier(ctx, testActor, ref.ID, reference.MustParseCurie("WB:WBPaper2"))
	})
	if err != nil {
		t.Fatal(err)
	}

	report := mustRun(t, e, zfin, rec(zfin, "Fish", "ZFIN:ZDB-PUB-1", "WB:WBPaper1", "PMID:1"))

	got := report.ConflictsOf(conflict.ObsoleteIdentifier)
	if len(got) != 1 || len(got[0].Curies) != 1 || got[0].Curies[0] != ref.Curie {
		t.Fatalf("conflicts = %+v, want one ObsoleteIdentifier naming %s", report.Conflicts, ref.Curie)
	}
	if report.Stats.Updated != 1 || report.Stats.Rejected != 0 {
		t.Errorf("stats = %+v, want the record applied", report.Stats)
	}
	after := resolve(t, db, "ZFIN:ZDB-PUB-1")
	if after.ID != ref.ID || resolve(t, db, "WB:WBPaper2").ID != ref.ID {
		t.Errorf("identifiers = %v, want WB:WBPaper2 kept and ZFIN attached", after.ValidIdentifiers())
	}
	if _, obsolete := holder(t, db, "WB:WBPaper1"); !obsolete {
		t.Error("obsolete identifier was revived over the current one")
	}
}

func TestRun_UnalignableAuthorsRejectRecord(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Draft title", "WB:WBPaper1"))
	ref := resolve(t, db, "WB:WBPaper1")

	ctx := context.Background()
	err := db.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := tx.InsertAuthor(ctx, testActor, ref.ID, reference.Author{Name: "Legacy Author"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	final := rec(wb, "Final title", "WB:WBPaper1")
	final.Lists.Authors = []reference.Author{{Rank: 1, Name: "A One"}, {Rank: 2, Name: "B Two"}}

	for i := 0; i < 2; i++ {
		report := mustRun(t, e, wb, final)
		if report.Stats.Rejected != 1 || report.Stats.Unchanged != 0 {
			t.Fatalf("run %d stats = %+v, want 1 rejected", i, report.Stats)
		}
		if len(report.ConflictsOf(conflict.StructuralDiffUnsafe)) != 1 {
			t.Fatalf("run %d conflicts = %+v, want StructuralDiffUnsafe", i, report.Conflicts)
		}
	}

	after := resolve(t, db, "WB:WBPaper1")
	if after.Biblio.Title != "Draft title" {
		t.Errorf("title = %q, record was partly applied", after.Biblio.Title)
	}
	if len(after.Authors) != 1 {
		t.Errorf("authors = %+v, want only the stored one", after.Authors)
	}
}

// cancellingStore cancels the run after a number of hash lookups.
type cancellingStore struct {
	changes.HashStore
	lookups int
	cancel  context.CancelFunc
}

func (s *cancellingStore) GetHash(ctx context.Context, provider, externalID string) (string, bool, error) {
	s.lookups--
	if s.lookups == 0 {
		s.cancel()
	}
	return s.HashStore.GetHash(ctx, provider, externalID)
}

func TestRun_CancelledMidRun(t *testing.T) {
	db := setupTestDB(t)
	mustRun(t, newEngine(db, Options{}), wb,
		rec(wb, "A", "WB:WBPaper1"),
		rec(wb, "B", "WB:WBPaper2"),
		rec(wb, "C", "WB:WBPaper3"),
		rec(wb, "D", "WB:WBPaper4"),
	)
	batch := []submission.Record{
		rec(wb, "A v2", "WB:WBPaper1"),
		rec(wb, "B v2", "WB:WBPaper2"),
		rec(wb, "C v2", "WB:WBPaper3"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{HashStore: db, lookups: 2, cancel: cancel}
	e := newEngine(db, Options{BatchSize: 1, Hashes: store})

	report, err := e.Run(ctx, testActor, wb, batch)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Aborted || report.Stats.Updated != 1 {
		t.Fatalf("report = %+v, want aborted after one update", report)
	}
	if len(report.OutOfCorpus) != 0 {
		t.Errorf("OutOfCorpus = %v, cancelled run must not sweep", report.OutOfCorpus)
	}
	if ca, _ := resolve(t, db, "WB:WBPaper4").Corpus("WB"); !ca.Corpus {
		t.Error("cancelled run withdrew the corpus")
	}
	if got := resolve(t, db, "WB:WBPaper2").Biblio.Title; got != "B" {
		t.Errorf("title after cancel = %q, want B", got)
	}

	rerun := mustRun(t, newEngine(db, Options{BatchSize: 1}), wb, batch...)
	if rerun.Aborted || rerun.Stats.Unchanged != 1 || rerun.Stats.Updated != 2 {
		t.Errorf("rerun stats = %+v, want 1 unchanged and 2 updated", rerun.Stats)
	}
	if len(rerun.OutOfCorpus) != 1 || rerun.OutOfCorpus[0] != "WB:WBPaper4" {
		t.Errorf("rerun OutOfCorpus = %v, want [WB:WBPaper4]", rerun.OutOfCorpus)
	}
}

func TestRun_EmptyBatchSkipsSweep(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Paper", "WB:WBPaper1"))

	report := mustRun(t, e, wb)
	if len(report.OutOfCorpus) != 0 {
		t.Errorf("OutOfCorpus = %v, want none for an empty batch", report.OutOfCorpus)
	}
	if ca, _ := resolve(t, db, "WB:WBPaper1").Corpus("WB"); !ca.Corpus {
		t.Error("empty batch withdrew the corpus")
	}
}

func TestRun_BiblioOwnership(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Provider title", "WB:WBPaper1", "PMID:100"))

	// With a PMID the index owns biblio, so the provider cannot retitle.
	mustRun(t, e, wb, rec(wb, "Provider retitle", "WB:WBPaper1", "PMID:100"))
	if got := resolve(t, db, "PMID:100").Biblio.Title; got != "Provider title" {
		t.Errorf("title after provider update = %q", got)
	}

	index := rec(pubmed, "Index title", "PMID:100")
	index.PerProvider = submission.PerProvider{}
	mustRun(t, e, pubmed, index)
	if got := resolve(t, db, "PMID:100").Biblio.Title; got != "Index title" {
		t.Errorf("title after index update = %q, want Index title", got)
	}
}

func TestRun_BiblioOwnershipConflict(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Shared", "WB:WBPaper1", "DOI:10.1/shared"))

	report := mustRun(t, e, zfin, rec(zfin, "Fish title", "ZFIN:ZDB-PUB-1", "DOI:10.1/shared"))
	if len(report.ConflictsOf(conflict.BiblioOwnershipConflict)) != 1 {
		t.Fatalf("conflicts = %+v, want BiblioOwnershipConflict", report.Conflicts)
	}
	ref := resolve(t, db, "DOI:10.1/shared")
	if ref.Biblio.Title != "Shared" {
		t.Errorf("title = %q, biblio patched despite ownership conflict", ref.Biblio.Title)
	}
	if len(ref.ValidIdentifiers()) != 3 {
		t.Errorf("identifiers = %v, want ZFIN id attached", ref.ValidIdentifiers())
	}
	if ca, ok := ref.Corpus("ZFIN"); !ok || !ca.Corpus {
		t.Errorf("ZFIN corpus = %+v, %v", ca, ok)
	}
}

func TestRun_UnparseableDateIsReported(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	r := rec(wb, "Undated", "WB:WBPaper1")
	r.Scalars.DatePublished = "in press"

	report := mustRun(t, e, wb, r)
	if len(report.ConflictsOf(conflict.UnparseableDate)) != 1 {
		t.Fatalf("conflicts = %+v, want UnparseableDate", report.Conflicts)
	}
	ref := resolve(t, db, "WB:WBPaper1")
	if ref.Biblio.Title != "Undated" || ref.Biblio.DatePublished != "" {
		t.Errorf("biblio = %+v", ref.Biblio)
	}
}

func TestRun_ResourceIdentifierReserved(t *testing.T) {
	db := setupTestDB(t)
	if err := db.AddResourceIdentifier(context.Background(), "NLM:0001"); err != nil {
		t.Fatal(err)
	}
	e := newEngine(db, Options{})

	report := mustRun(t, e, wb, rec(wb, "Journal", "NLM:0001"))
	if len(report.ConflictsOf(conflict.ResourceIdentifierReserved)) != 1 || report.Stats.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
	if countRefs(t, db) != 0 {
		t.Error("reserved identifier produced a reference")
	}
}

func TestRun_Relations(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	mustRun(t, e, wb, rec(wb, "Original", "WB:WBPaper1", "PMID:1"))

	erratum := rec(wb, "Erratum", "WB:WBPaper2", "PMID:2")
	erratum.Relations = []submission.Relation{{Type: reference.ErratumFor, Other: reference.MustParseCurie("PMID:1")}}
	mustRun(t, e, wb, rec(wb, "Original", "WB:WBPaper1", "PMID:1"), erratum)

	ref := resolve(t, db, "PMID:2")
	if len(ref.Relations) != 1 || ref.Relations[0].Type != reference.ErratumFor || ref.Relations[0].SourceID != ref.ID {
		t.Errorf("relations = %+v", ref.Relations)
	}
}

func TestRun_SmallBatches(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{BatchSize: 1})

	report := mustRun(t, e, wb,
		rec(wb, "A", "WB:WBPaper1"),
		rec(wb, "B", "WB:WBPaper2"),
		rec(wb, "C", "WB:WBPaper3"),
	)
	if report.Stats.Created != 3 {
		t.Errorf("created = %d, want 3", report.Stats.Created)
	}
}

func TestRun_MemoryHashStore(t *testing.T) {
	db := setupTestDB(t)
	store := changes.NewMemoryStore()
	e := newEngine(db, Options{Hashes: store})

	mustRun(t, e, wb, rec(wb, "A", "WB:WBPaper1"))
	if store.Len() != 1 {
		t.Errorf("memory store holds %d hashes, want 1", store.Len())
	}
}

func TestRun_RequiresActor(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	if _, err := e.Run(context.Background(), "", wb, nil); !errors.Is(err, storage.ErrMissingActor) {
		t.Errorf("err = %v, want ErrMissingActor", err)
	}
}

func TestRunAll_FetchFailureIsolated(t *testing.T) {
	db := setupTestDB(t)
	e := newEngine(db, Options{})
	fetchErr := errors.New("connection refused")

	reports, err := e.RunAll(context.Background(), testActor, []Job{
		{Provider: wb, Load: func(context.Context) ([]submission.Record, error) {
			return []submission.Record{rec(wb, "A", "WB:WBPaper1")}, nil
		}},
		{Provider: zfin, Load: func(context.Context) ([]submission.Record, error) {
			return nil, fetchErr
		}},
	})

	if !conflict.IsFetchFailure(err) || !errors.Is(err, fetchErr) {
		t.Fatalf("RunAll() error = %v, want wrapped fetch failure", err)
	}
	if reports[0].Stats.Created != 1 || reports[0].Aborted {
		t.Errorf("WB report = %+v", reports[0])
	}
	if !reports[1].Aborted || len(reports[1].ConflictsOf(conflict.UpstreamFetchFailure)) != 1 {
		t.Errorf("ZFIN report = %+v", reports[1])
	}
}

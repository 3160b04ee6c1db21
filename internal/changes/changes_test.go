package changes

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/submission"
)

func sampleRecord() *submission.Record {
	return &submission.Record{
		Primary: reference.MustParseCurie("WB:WBPaper1"),
		Identifiers: []reference.Identifier{
			reference.MustParseCurie("WB:WBPaper1"),
			reference.MustParseCurie("PMID:100"),
		},
		Scalars: reference.Biblio{
			Title:         "A title",
			Volume:        "12",
			DatePublished: "1999 Jan",
		},
		Lists: submission.Lists{
			Authors: []reference.Author{
				{Rank: 1, Name: "A One"},
				{Rank: 2, Name: "B Two"},
			},
			MeshTerms: []reference.MeshTerm{{Heading: "Animals"}},
		},
		PerProvider: submission.PerProvider{
			ReferenceTypes:     []reference.ModReferenceType{{Provider: "WB", Type: "Journal_article"}},
			CorpusAssociations: []reference.CorpusAssociation{{Provider: "WB", Corpus: true, Source: reference.SourceProviderFiles}},
		},
	}
}

func TestHasChanged_FirstRun(t *testing.T) {
	d := NewDetector(NewMemoryStore())
	changed, err := d.HasChanged(context.Background(), "WB", "WB:WBPaper1", sampleRecord())
	if err != nil {
		t.Fatalf("HasChanged() error = %v", err)
	}
	if !changed {
		t.Error("HasChanged() = false with no stored hash, want true")
	}
}

func TestHasChanged_AfterCommit(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore())
	rec := sampleRecord()

	if err := d.Commit(ctx, "WB", "WB:WBPaper1", rec); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	changed, err := d.HasChanged(ctx, "WB", "WB:WBPaper1", sampleRecord())
	if err != nil {
		t.Fatalf("HasChanged() error = %v", err)
	}
	if changed {
		t.Error("HasChanged() = true immediately after Commit of the same record")
	}

	// same record, other provider
	changed, _ = d.HasChanged(ctx, "SGD", "WB:WBPaper1", rec)
	if !changed {
		t.Error("HasChanged() for another provider = false, want true")
	}
}

func TestHasChanged_IgnoresVolatileMeta(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore())
	rec := sampleRecord()
	if err := d.Commit(ctx, "WB", "k", rec); err != nil {
		t.Fatal(err)
	}

	rec2 := sampleRecord()
	rec2.Meta = submission.Meta{DateLastModified: "2030-01-01", Citation: "x", Tags: []string{"t"}}
	changed, _ := d.HasChanged(ctx, "WB", "k", rec2)
	if changed {
		t.Error("HasChanged() = true for a metadata-only difference")
	}
}

// mutations each change exactly one hashed field.
var mutations = []func(r *submission.Record, rng *rand.Rand){
	func(r *submission.Record, rng *rand.Rand) { r.Scalars.Title += fmt.Sprint(rng.Int()) },
	func(r *submission.Record, rng *rand.Rand) { r.Scalars.Abstract = fmt.Sprint(rng.Int()) },
	func(r *submission.Record, rng *rand.Rand) { r.Scalars.Volume = fmt.Sprint(rng.Intn(1000) + 13) },
	func(r *submission.Record, rng *rand.Rand) { r.Scalars.DatePublished = fmt.Sprint(1900 + rng.Intn(99)) },
	func(r *submission.Record, rng *rand.Rand) { r.Scalars.Category = "review" },
	func(r *submission.Record, rng *rand.Rand) {
		r.Identifiers = append(r.Identifiers, reference.Identifier{Prefix: "DOI", ID: fmt.Sprintf("10.%d/x", rng.Int())})
	},
	func(r *submission.Record, rng *rand.Rand) { r.Identifiers = r.Identifiers[:1] },
	func(r *submission.Record, rng *rand.Rand) { r.Lists.Authors[rng.Intn(2)].Name += "x" },
	func(r *submission.Record, rng *rand.Rand) {
		r.Lists.Authors[0], r.Lists.Authors[1] = r.Lists.Authors[1], r.Lists.Authors[0]
	},
	func(r *submission.Record, rng *rand.Rand) { r.Lists.Authors = r.Lists.Authors[:1] },
	func(r *submission.Record, rng *rand.Rand) { r.Lists.Authors[0].Rank = 3 + rng.Intn(10) },
	func(r *submission.Record, rng *rand.Rand) {
		r.Lists.MeshTerms = append(r.Lists.MeshTerms, reference.MeshTerm{Heading: fmt.Sprint(rng.Int())})
	},
	func(r *submission.Record, rng *rand.Rand) { r.Lists.MeshTerms[0].Qualifier = "genetics" },
	func(r *submission.Record, rng *rand.Rand) { r.PerProvider.ReferenceTypes[0].Type = "Review" },
	func(r *submission.Record, rng *rand.Rand) { r.PerProvider.CorpusAssociations[0].Corpus = false },
	func(r *submission.Record, rng *rand.Rand) {
		r.Relations = append(r.Relations, submission.Relation{Type: reference.ErratumFor, Other: reference.Identifier{Prefix: "PMID", ID: fmt.Sprint(rng.Int())}})
	},
}

func TestHasChanged_NoFalseNegatives(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		d := NewDetector(NewMemoryStore())
		if err := d.Commit(ctx, "WB", "WB:WBPaper1", sampleRecord()); err != nil {
			t.Fatal(err)
		}

		mutated := sampleRecord()
		n := rng.Intn(len(mutations))
		mutations[n](mutated, rng)

		changed, err := d.HasChanged(ctx, "WB", "WB:WBPaper1", mutated)
		if err != nil {
			t.Fatalf("HasChanged() error = %v", err)
		}
		if !changed {
			t.Fatalf("iteration %d: mutation %d not detected", i, n)
		}
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDetector(store)
	rec := sampleRecord()
	_ = d.Commit(ctx, "WB", "a", rec)
	_ = d.Commit(ctx, "WB", "b", rec)
	_ = d.Commit(ctx, "SGD", "a", rec)

	n, err := d.Reset(ctx, "WB")
	if err != nil || n != 2 {
		t.Fatalf("Reset() = %d, %v; want 2, nil", n, err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d hashes, want 1", store.Len())
	}
	changed, _ := d.HasChanged(ctx, "WB", "a", rec)
	if !changed {
		t.Error("HasChanged() after Reset = false, want true")
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	d := NewDetector(store)
	rec := sampleRecord()
	if err := d.Commit(ctx, "WB", "WB:WBPaper1", rec); err != nil {
		t.Fatal(err)
	}
	if err := d.Forget(ctx, "WB", "WB:WBPaper1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	changed, err := d.HasChanged(ctx, "WB", "WB:WBPaper1", rec)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("HasChanged() after Forget = false, want true")
	}
	// Forgetting an unknown id is not an error.
	if err := d.Forget(ctx, "WB", "WB:missing"); err != nil {
		t.Errorf("Forget(missing) error = %v", err)
	}
}

func TestForget_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore())
	rec := sampleRecord()
	if err := d.Commit(ctx, "WB", "WB:wbpaper1", rec); err != nil {
		t.Fatal(err)
	}
	if changed, _ := d.HasChanged(ctx, "WB", "WB:WBPaper1", rec); changed {
		t.Error("HasChanged() with a case variant of the id = true, want false")
	}
	if err := d.Forget(ctx, "WB", "WB:WBPaper1"); err != nil {
		t.Fatal(err)
	}
	if changed, _ := d.HasChanged(ctx, "WB", "WB:wbpaper1", rec); !changed {
		t.Error("HasChanged() after forgetting a case variant = false, want true")
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a, err := Fingerprint(sampleRecord())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Fingerprint(sampleRecord())
	if a != b {
		t.Errorf("Fingerprint() not stable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Fingerprint() length = %d, want 64 hex chars", len(a))
	}
}

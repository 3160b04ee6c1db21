package submission

import (
	"errors"
	"reflect"
	"testing"

	"github.com/litcat/litrec/internal/reference"
)

func ids(curies ...string) []reference.Identifier {
	out := make([]reference.Identifier, len(curies))
	for i, c := range curies {
		out[i] = reference.MustParseCurie(c)
	}
	return out
}

func TestRecord_AllIdentifiers(t *testing.T) {
	r := Record{
		Primary:     reference.MustParseCurie("WB:WBPaper1"),
		Identifiers: ids("WB:WBPaper1", "PMID:100", "pmid:100", "DOI:10.1/x"),
	}

	got := r.AllIdentifiers()
	want := ids("WB:WBPaper1", "PMID:100", "DOI:10.1/x")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AllIdentifiers() = %v, want %v", got, want)
	}
}

func TestRecord_DuplicatePrefixes(t *testing.T) {
	tests := []struct {
		name string
		ids  []reference.Identifier
		want []string
	}{
		{"none", ids("PMID:1", "DOI:10.1/a"), nil},
		{"pmid twice", ids("PMID:1", "PMID:2", "DOI:10.1/a"), []string{"PMID"}},
		{"cgc allowed", ids("CGC:1", "CGC:2"), nil},
		{"same id twice is not a dupe", ids("PMID:1", "pmid:1"), nil},
		{"two prefixes", ids("PMID:1", "PMID:2", "DOI:10.1/a", "DOI:10.1/b"), []string{"DOI", "PMID"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{Primary: reference.MustParseCurie("WB:WBPaper1"), Identifiers: tt.ids}
			got := r.DuplicatePrefixes()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DuplicatePrefixes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_Validate(t *testing.T) {
	var r Record
	if err := r.Validate(); !errors.Is(err, ErrMissingPrimary) {
		t.Errorf("Validate() error = %v, want ErrMissingPrimary", err)
	}
	r.Primary = reference.MustParseCurie("SGD:S000001")
	if err := r.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRecord_Identifier(t *testing.T) {
	r := Record{Primary: reference.MustParseCurie("ZFIN:ZDB-PUB-1"), Identifiers: ids("PMID:42")}
	id, ok := r.Identifier("pmid")
	if !ok || id.ID != "42" {
		t.Errorf("Identifier(pmid) = %v, %v", id, ok)
	}
	if _, ok := r.Identifier("DOI"); ok {
		t.Error("Identifier(DOI) found, want missing")
	}
}

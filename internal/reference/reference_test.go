package reference

import (
	"errors"
	"testing"
)

func TestParseCurie(t *testing.T) {
	tests := []struct {
		input string
		want  Identifier
	}{
		{"PMID:12345", Identifier{"PMID", "12345"}},
		{"pmid:12345", Identifier{"PMID", "12345"}},
		{"WB:WBPaper00012345", Identifier{"WB", "WBPaper00012345"}},
		{"DOI:10.1000/abc:def", Identifier{"DOI", "10.1000/abc:def"}},
		{"DOI:https://doi.org/10.1000/xyz", Identifier{"DOI", "10.1000/xyz"}},
		{"DOI:10.1037//0022-3514.1", Identifier{"DOI", "10.1037/0022-3514.1"}},
		{"FB-FBrf0000001", Identifier{"FB", "FBrf0000001"}},
		{"  CGC:cgc123 ", Identifier{"CGC", "cgc123"}},
		{"PMC:PMC111", Identifier{"PMCID", "PMC111"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCurie(tt.input)
			if err != nil {
				t.Fatalf("ParseCurie(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCurie(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCurie_Malformed(t *testing.T) {
	for _, input := range []string{"", "12345", ":123", "PMID:"} {
		if _, err := ParseCurie(input); !errors.Is(err, ErrMalformedCurie) {
			t.Errorf("ParseCurie(%q) error = %v, want ErrMalformedCurie", input, err)
		}
	}
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10.1000/abc", "10.1000/abc"},
		{"http://dx.doi.org/10.1000/abc", "10.1000/abc"},
		{"https://doi.org/10.1000/abc", "10.1000/abc"},
		{"doi.org/10.1000/abc", "10.1000/abc"},
		{"10.1000/ a b", "10.1000/ab"},
	}

	for _, tt := range tests {
		if got := NormalizeDOI(tt.input); got != tt.want {
			t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIdentifier_Equal(t *testing.T) {
	a := Identifier{"DOI", "10.1000/ABC"}
	b := Identifier{"doi", "10.1000/abc"}
	if !a.Equal(b) {
		t.Error("Equal() = false for case variants")
	}
	if a.Key() != b.Key() {
		t.Errorf("Key() differs: %q vs %q", a.Key(), b.Key())
	}
	if a.Equal(Identifier{"DOI", "10.1000/abd"}) {
		t.Error("Equal() = true for different ids")
	}
}

func TestIsMultiValued(t *testing.T) {
	if !IsMultiValued("CGC") || !IsMultiValued("cgc") {
		t.Error("CGC should be multi-valued")
	}
	if IsMultiValued("PMID") {
		t.Error("PMID should not be multi-valued")
	}
}

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		input    string
		want     RelationType
		incoming bool
	}{
		{"ErratumFor", ErratumFor, false},
		{"ErratumIn", ErratumFor, true},
		{"CommentIn", CommentOn, true},
		{"CommentOn", CommentOn, false},
		{"RetractionIn", RetractionOf, true},
		{"ChapterIn", ChapterIn, false},
		{"republishedin", RepublishedFrom, true},
	}

	for _, tt := range tests {
		got, incoming, err := ParseRelationType(tt.input)
		if err != nil {
			t.Fatalf("ParseRelationType(%q) error = %v", tt.input, err)
		}
		if got != tt.want || incoming != tt.incoming {
			t.Errorf("ParseRelationType(%q) = %s, %v; want %s, %v", tt.input, got, incoming, tt.want, tt.incoming)
		}
	}

	if _, _, err := ParseRelationType("CitedBy"); !errors.Is(err, ErrUnknownRelationType) {
		t.Errorf("ParseRelationType(CitedBy) error = %v, want ErrUnknownRelationType", err)
	}
}

func TestRelation_Validate(t *testing.T) {
	tests := []struct {
		name string
		rel  Relation
		want error
	}{
		{"valid", Relation{SourceID: 1, TargetID: 2, Type: ErratumFor}, nil},
		{"self loop", Relation{SourceID: 3, TargetID: 3, Type: CommentOn}, ErrSelfRelation},
		{"unknown type", Relation{SourceID: 1, TargetID: 2, Type: "CitedBy"}, ErrUnknownRelationType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rel.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBiblio_GetSet(t *testing.T) {
	var b Biblio
	for _, f := range BiblioFields {
		b.Set(f, string(f)+"-value")
	}
	for _, f := range BiblioFields {
		if got := b.Get(f); got != string(f)+"-value" {
			t.Errorf("Get(%s) = %q", f, got)
		}
	}
	b.Set("nonexistent", "x")
	if got := b.Get("nonexistent"); got != "" {
		t.Errorf("Get(nonexistent) = %q, want empty", got)
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Research Article", "research_article"},
		{" Review ", "review"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCategory(tt.in); got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

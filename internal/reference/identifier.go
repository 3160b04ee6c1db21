package reference

import (
	"errors"
	"fmt"
	"strings"
)

// Well-known identifier prefixes.
const (
	PrefixPMID = "PMID"
	PrefixDOI  = "DOI"
	PrefixPMC  = "PMCID"
	PrefixCGC  = "CGC"
)

// ErrMalformedCurie is returned when a string has no prefix separator.
var ErrMalformedCurie = errors.New("malformed curie")

// multiValued lists prefixes that may legitimately carry several valid
// identifiers on one reference.
var multiValued = map[string]bool{
	PrefixCGC: true,
}

// IsMultiValued reports whether prefix admits more than one valid identifier
// per reference.
func IsMultiValued(prefix string) bool {
	return multiValued[strings.ToUpper(prefix)]
}

// Identifier is an external (prefix, id) pair such as PMID:12345.
type Identifier struct {
	Prefix string `json:"prefix"`
	ID     string `json:"id"`
}

// Curie renders the identifier as PREFIX:id.
func (i Identifier) Curie() string {
	return i.Prefix + ":" + i.ID
}

func (i Identifier) String() string {
	return i.Curie()
}

// Key returns the case-folded curie used for lookups and comparisons.
func (i Identifier) Key() string {
	return strings.ToLower(i.Curie())
}

// Equal compares two identifiers case-insensitively.
func (i Identifier) Equal(o Identifier) bool {
	return strings.EqualFold(i.Prefix, o.Prefix) && strings.EqualFold(i.ID, o.ID)
}

// ParseCurie splits a curie on its first ':' (or first '-' when there is no
// colon) and normalizes known identifier quirks.
func ParseCurie(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	sep := strings.Index(s, ":")
	if sep < 0 {
		sep = strings.Index(s, "-")
	}
	if sep <= 0 || sep == len(s)-1 {
		return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedCurie, s)
	}
	id := Identifier{Prefix: s[:sep], ID: s[sep+1:]}
	return Normalize(id), nil
}

// MustParseCurie is like ParseCurie but panics on error.
func MustParseCurie(s string) Identifier {
	id, err := ParseCurie(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Normalize canonicalizes the prefix spelling of well-known prefixes and
// repairs DOI values.
func Normalize(id Identifier) Identifier {
	switch strings.ToUpper(id.Prefix) {
	case PrefixPMID:
		id.Prefix = PrefixPMID
	case PrefixDOI:
		id.Prefix = PrefixDOI
		id.ID = NormalizeDOI(id.ID)
	case PrefixPMC, "PMC":
		id.Prefix = PrefixPMC
	case PrefixCGC:
		id.Prefix = PrefixCGC
	}
	return id
}

var doiURLPrefixes = []string{
	"http://dx.doi.org/",
	"https://dx.doi.org/",
	"http://doi.org/",
	"https://doi.org/",
	"doi.org/",
}

// NormalizeDOI strips resolver URL prefixes, removes spaces and collapses the
// doubled slash some publishers emit ("10.1037//" -> "10.1037/").
func NormalizeDOI(doi string) string {
	for _, p := range doiURLPrefixes {
		if strings.HasPrefix(strings.ToLower(doi), p) {
			doi = doi[len(p):]
			break
		}
	}
	doi = strings.ReplaceAll(doi, " ", "")
	if strings.HasPrefix(doi, "10.1037//") {
		doi = "10.1037/" + strings.TrimPrefix(doi, "10.1037//")
	}
	return doi
}

// CrossReference is a persisted identifier attached to a reference.
type CrossReference struct {
	ID          int64 `json:"row_id,omitempty"`
	ReferenceID int64 `json:"reference_id"`
	Identifier
	Obsolete bool `json:"obsolete"`
}

// Package importer converts provider submission files into normalized
// submission records.
package importer

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/litcat/litrec/internal/conflict"
	"github.com/litcat/litrec/internal/reference"
	"github.com/litcat/litrec/internal/submission"
)

// skippedIdentifiers are identifier prefixes providers send that never denote
// a publication (e.g. a bare publisher DOI prefix).
var skippedIdentifiers = []string{
	"DOI:10.1042/",
}

// FlexibleString can unmarshal from either string or number JSON values.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	// Handle null
	if string(data) == "null" {
		*f = ""
		return nil
	}

	// Try string first
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleString(s)
		return nil
	}

	// Try number
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleString(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleString", string(data))
}

func (f FlexibleString) String() string {
	return string(f)
}

// File is the envelope of a provider submission file.
type File struct {
	Data []Entry `json:"data"`
}

// Entry is a single publication in a provider submission file.
type Entry struct {
	PrimaryID        string         `json:"primaryId"`
	Title            string         `json:"title"`
	AllianceCategory string         `json:"allianceCategory"`
	Volume           FlexibleString `json:"volume"`
	Pages            FlexibleString `json:"pages"`
	Language         string         `json:"language"`
	Abstract         string         `json:"abstract"`
	Publisher        string         `json:"publisher"`
	IssueName        FlexibleString `json:"issueName"`
	DatePublished    FlexibleString `json:"datePublished"`
	DateLastModified string         `json:"dateLastModified"`
	Citation         string         `json:"citation"`
	Keywords         []string       `json:"keywords"`

	CrossReferences []struct {
		ID string `json:"id"`
	} `json:"crossReferences"`

	Authors []struct {
		Name       string         `json:"name"`
		FirstName  string         `json:"firstName"`
		LastName   string         `json:"lastName"`
		AuthorRank FlexibleString `json:"authorRank"`
		ORCID      string         `json:"orcid"`
	} `json:"authors"`

	MeshTerms []struct {
		Heading   string `json:"meshHeadingTerm"`
		Qualifier string `json:"meshQualifierTerm"`
	} `json:"meshTerms"`

	MODReferenceTypes []struct {
		ReferenceType string `json:"referenceType"`
		Source        string `json:"source"`
	} `json:"MODReferenceTypes"`

	Tags []struct {
		TagName string `json:"tagName"`
	} `json:"tags"`

	CommentsCorrections map[string][]string `json:"commentsCorrections"`
}

// ParseSubmissionFile parses a provider submission file and returns the
// normalized records. Entries that cannot be normalized are returned as
// errors and omitted; other entries are unaffected.
func ParseSubmissionFile(data []byte, provider string) ([]submission.Record, []error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, []error{fmt.Errorf("parsing submission JSON: %w", err)}
	}

	var records []submission.Record
	var errs []error

	for i, entry := range file.Data {
		rec, entryErrs := entryToRecord(entry, provider)
		for _, err := range entryErrs {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, entry.PrimaryID, err))
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	return records, errs
}

// entryToRecord converts an entry to a submission record. A nil record means
// the entry was rejected; errors alongside a record are partial drops.
func entryToRecord(entry Entry, provider string) (*submission.Record, []error) {
	if strings.TrimSpace(entry.PrimaryID) == "" {
		return nil, []error{fmt.Errorf("missing required field 'primaryId'")}
	}
	primary, err := reference.ParseCurie(entry.PrimaryID)
	if err != nil {
		return nil, []error{err}
	}

	var errs []error
	rec := &submission.Record{
		Primary:     primary,
		Identifiers: []reference.Identifier{primary},
	}

	for _, x := range entry.CrossReferences {
		if skipIdentifier(x.ID) {
			continue
		}
		id, err := reference.ParseCurie(x.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rec.Identifiers = append(rec.Identifiers, id)
	}

	rec.Scalars = reference.Biblio{
		Title:         unescape(entry.Title),
		Category:      reference.NormalizeCategory(entry.AllianceCategory),
		Volume:        entry.Volume.String(),
		PageRange:     entry.Pages.String(),
		Language:      entry.Language,
		Abstract:      unescape(entry.Abstract),
		Publisher:     unescape(entry.Publisher),
		IssueName:     entry.IssueName.String(),
		DatePublished: strings.TrimSpace(entry.DatePublished.String()),
	}

	for i, a := range entry.Authors {
		rank, err := strconv.Atoi(a.AuthorRank.String())
		if err != nil || rank < 1 {
			// Source order stands in for a missing rank.
			rank = i + 1
		}
		rec.Lists.Authors = append(rec.Lists.Authors, reference.Author{
			Rank:      rank,
			Name:      unescape(a.Name),
			FirstName: unescape(a.FirstName),
			LastName:  unescape(a.LastName),
			ORCID:     a.ORCID,
		})
	}

	for _, m := range entry.MeshTerms {
		if m.Heading == "" {
			continue
		}
		rec.Lists.MeshTerms = append(rec.Lists.MeshTerms, reference.MeshTerm{
			Heading:   m.Heading,
			Qualifier: m.Qualifier,
		})
	}

	for _, t := range entry.MODReferenceTypes {
		if t.ReferenceType == "" {
			continue
		}
		src := t.Source
		if src == "" {
			src = provider
		}
		rec.PerProvider.ReferenceTypes = append(rec.PerProvider.ReferenceTypes, reference.ModReferenceType{
			Provider: src,
			Type:     t.ReferenceType,
		})
	}

	rec.PerProvider.CorpusAssociations = []reference.CorpusAssociation{{
		Provider: provider,
		Corpus:   true,
		Source:   reference.SourceProviderFiles,
	}}

	rels, relErrs := parseRelations(rec, entry.CommentsCorrections)
	rec.Relations = rels
	errs = append(errs, relErrs...)

	rec.Meta = submission.Meta{
		DateLastModified: entry.DateLastModified,
		Citation:         entry.Citation,
		Keywords:         entry.Keywords,
	}
	for _, t := range entry.Tags {
		rec.Meta.Tags = append(rec.Meta.Tags, t.TagName)
	}

	return rec, errs
}

// parseRelations converts comment/correction lists into one-edge relations.
// Self-loops and unknown types are dropped with an error.
func parseRelations(rec *submission.Record, cc map[string][]string) ([]submission.Relation, []error) {
	own := make(map[string]bool)
	for _, id := range rec.AllIdentifiers() {
		own[id.Key()] = true
	}

	// Stable order for hashing.
	types := make([]string, 0, len(cc))
	for t := range cc {
		types = append(types, t)
	}
	sort.Strings(types)

	var rels []submission.Relation
	var errs []error
	for _, name := range types {
		rt, incoming, err := reference.ParseRelationType(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, c := range cc[name] {
			other, err := reference.ParseCurie(c)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if own[other.Key()] {
				errs = append(errs, conflict.Wrap(conflict.SelfRelation, rec.Primary.Curie(),
					fmt.Errorf("%w: %s %s", reference.ErrSelfRelation, name, c)))
				continue
			}
			rels = append(rels, submission.Relation{Type: rt, Other: other, Incoming: incoming})
		}
	}
	return rels, errs
}

func unescape(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

func skipIdentifier(curie string) bool {
	curie = strings.TrimSpace(curie)
	for _, s := range skippedIdentifiers {
		if curie == s {
			return true
		}
	}
	return curie == ""
}

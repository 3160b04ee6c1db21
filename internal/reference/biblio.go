package reference

import "strings"

// Field names a biblio scalar.
type Field string

const (
	FieldTitle              Field = "title"
	FieldCategory           Field = "category"
	FieldVolume             Field = "volume"
	FieldPageRange          Field = "page_range"
	FieldAbstract           Field = "abstract"
	FieldLanguage           Field = "language"
	FieldPublisher          Field = "publisher"
	FieldIssueName          Field = "issue_name"
	FieldDatePublished      Field = "date_published"
	FieldDatePublishedStart Field = "date_published_start"
	FieldDatePublishedEnd   Field = "date_published_end"
)

// BiblioFields lists every biblio field in a stable order.
var BiblioFields = []Field{
	FieldTitle,
	FieldCategory,
	FieldVolume,
	FieldPageRange,
	FieldAbstract,
	FieldLanguage,
	FieldPublisher,
	FieldIssueName,
	FieldDatePublished,
	FieldDatePublishedStart,
	FieldDatePublishedEnd,
}

// Biblio holds the bibliographic scalar fields of a reference.
// Date interval endpoints are YYYY-MM-DD strings.
type Biblio struct {
	Title              string `json:"title,omitempty"`
	Category           string `json:"category,omitempty"`
	Volume             string `json:"volume,omitempty"`
	PageRange          string `json:"page_range,omitempty"`
	Abstract           string `json:"abstract,omitempty"`
	Language           string `json:"language,omitempty"`
	Publisher          string `json:"publisher,omitempty"`
	IssueName          string `json:"issue_name,omitempty"`
	DatePublished      string `json:"date_published,omitempty"`
	DatePublishedStart string `json:"date_published_start,omitempty"`
	DatePublishedEnd   string `json:"date_published_end,omitempty"`
}

// Get returns the value of a field.
func (b *Biblio) Get(f Field) string {
	if p := b.ptr(f); p != nil {
		return *p
	}
	return ""
}

// Set assigns a field. Unknown fields are ignored.
func (b *Biblio) Set(f Field, v string) {
	if p := b.ptr(f); p != nil {
		*p = v
	}
}

func (b *Biblio) ptr(f Field) *string {
	switch f {
	case FieldTitle:
		return &b.Title
	case FieldCategory:
		return &b.Category
	case FieldVolume:
		return &b.Volume
	case FieldPageRange:
		return &b.PageRange
	case FieldAbstract:
		return &b.Abstract
	case FieldLanguage:
		return &b.Language
	case FieldPublisher:
		return &b.Publisher
	case FieldIssueName:
		return &b.IssueName
	case FieldDatePublished:
		return &b.DatePublished
	case FieldDatePublishedStart:
		return &b.DatePublishedStart
	case FieldDatePublishedEnd:
		return &b.DatePublishedEnd
	}
	return nil
}

// NormalizeCategory lowercases a category and replaces spaces with underscores.
func NormalizeCategory(c string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
}

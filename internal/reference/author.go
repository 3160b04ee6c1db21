package reference

// Author is one entry of a reference's ordered author list.
type Author struct {
	ID            int64  `json:"id,omitempty"`   // Persisted row id; 0 for proposed rows
	Rank          int    `json:"rank,omitempty"` // 1-based order key from the source; 0 when unknown
	Name          string `json:"name,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	ORCID         string `json:"orcid,omitempty"`
	FirstAuthor   bool   `json:"first_author,omitempty"`
	Corresponding bool   `json:"corresponding_author,omitempty"`
}

// HasRank reports whether the author carries an explicit order key.
func (a Author) HasRank() bool {
	return a.Rank > 0
}

// CuratorMarked reports whether a curator has annotated this author.
func (a Author) CuratorMarked() bool {
	return a.FirstAuthor || a.Corresponding
}

package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNote ResultType = "note"
	ResultTag  ResultType = "tag"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	NoteID  string     `json:"noteId,omitempty"`
	OwnerID string     `json:"ownerId"`
}

// Query describes a search request. UserID scopes results to notes the
// user owns or has been shared, and to the user's own tags.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	UserID     string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexNote(n NoteRecord) error
	IndexTag(t TagRecord) error
	DeleteNote(id string) error
	DeleteTag(id string) error
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID         string   `json:"id"`
	Heading    string   `json:"heading"`
	Text       string   `json:"text"`
	OwnerID    string   `json:"ownerId"`
	PartnerIDs []string `json:"partnerIds"`
}

// TagRecord is the data we index for a tag.
type TagRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

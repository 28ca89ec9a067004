package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultReport ResultType = "report"
	ResultNote   ResultType = "note"
)

// Result is a single search hit. ReportID lets callers apply the same
// visibility predicate that scopes their dashboards before rendering hits.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	ReportID string     `json:"reportId"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	Status   string     `json:"status,omitempty"`
	Category string     `json:"category,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterStatus   string
	FilterCategory string
	Limit          int
	Offset         int
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

// ReportRecord is the data we index for a report.
type ReportRecord struct {
	ID          string `json:"id"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Category    string `json:"category"`
}

// NoteRecord is the data we index for a note.
type NoteRecord struct {
	ID         string `json:"id"`
	ReportID   string `json:"reportId"`
	Body       string `json:"body"`
	AuthorName string `json:"authorName"`
}

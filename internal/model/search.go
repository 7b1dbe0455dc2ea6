package model

// MaxSearchResults bounds how many results a search action keeps.
const MaxSearchResults = 3

// SearchResult is one web result shown next to the conversation.
type SearchResult struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// SearchResponse is returned by a search action.
type SearchResponse struct {
	Query   string         `json:"query,omitempty"`
	Results []SearchResult `json:"results"`
}

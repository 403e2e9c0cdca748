package types

// KeywordCluster is a client-computed group of topically similar keywords.
// Only selected clusters are sent to a BulkJob.
type KeywordCluster struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Selected bool     `json:"selected"`
}

// TargetPage is a client's URL and keyword set used as qualification criteria.
type TargetPage struct {
	ID       string   `json:"id"`
	ClientID string   `json:"clientId,omitempty"`
	URL      string   `json:"url"`
	Keywords []string `json:"keywords"`
	Status   string   `json:"status,omitempty"`
}

// ListTargetPagesResponse is the body of the client target page listing.
type ListTargetPagesResponse struct {
	TargetPages []TargetPage `json:"targetPages"`
}

// Package scholar provides a client for a SerpAPI-compatible Google Scholar
// gateway.
//
// Scholar has no official API; gateways that proxy it tolerate very little
// traffic and answer bursts with access denial. The client therefore issues
// strictly sequential page requests separated by a mandatory minimum
// interval, and treats any denial (403/429) as terminal for the current run
// rather than retrying.
package scholar

// SearchResponse represents the top-level gateway search response.
type SearchResponse struct {
	SearchInformation SearchInformation `json:"search_information"`
	OrganicResults    []OrganicResult   `json:"organic_results"`
	Error             string            `json:"error,omitempty"`
}

// SearchInformation carries result-count metadata.
type SearchInformation struct {
	TotalResults int `json:"total_results"`
}

// OrganicResult represents a single scholar search hit.
type OrganicResult struct {
	Position        int             `json:"position"`
	Title           string          `json:"title"`
	ResultID        string          `json:"result_id"`
	Link            string          `json:"link"`
	Snippet         string          `json:"snippet"`
	PublicationInfo PublicationInfo `json:"publication_info"`
}

// PublicationInfo carries author and venue metadata for a hit.
type PublicationInfo struct {
	Summary string       `json:"summary"`
	Authors []AuthorInfo `json:"authors,omitempty"`
}

// AuthorInfo identifies one author of a hit.
type AuthorInfo struct {
	Name string `json:"name"`
	Link string `json:"link,omitempty"`
}

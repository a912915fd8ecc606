// Package biorxiv provides a client for the bioRxiv preprint server API.
//
// The details endpoint returns preprints posted in a date interval, paged by
// cursor. The API has no query parameter, so the client pages through the
// interval and matches search terms against title and abstract client-side.
// That makes this source slow on wide intervals, so it is always dispatched
// under the pipeline's deadline guard.
//
// API documentation: https://api.biorxiv.org/
package biorxiv

import "strconv"

// DetailsResponse represents the top-level details API response.
type DetailsResponse struct {
	Messages   []Message  `json:"messages"`
	Collection []Preprint `json:"collection"`
}

// Message carries pagination metadata for one page.
type Message struct {
	Status string `json:"status"`
	// Total is the number of preprints in the interval. The API returns
	// it as a string.
	Total  string `json:"total"`
	Count  int    `json:"count"`
	Cursor any    `json:"cursor"`
}

// TotalCount parses the Total field; returns 0 when absent or malformed.
func (m Message) TotalCount() int {
	n, err := strconv.Atoi(m.Total)
	if err != nil {
		return 0
	}
	return n
}

// Preprint represents a single preprint in the details response.
type Preprint struct {
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	Authors              string `json:"authors"` // "Last, F.; Last, F."
	AuthorCorresponding  string `json:"author_corresponding"`
	Date                 string `json:"date"` // "2025-03-01"
	Category             string `json:"category"`
	Abstract             string `json:"abstract"`
	Server               string `json:"server"`
	Version              string `json:"version"`
	Published            string `json:"published"`
}

// Package domain provides the shared record model and error taxonomy for the
// literature retrieval pipeline.
//
// Every source adapter normalizes its upstream response into a Record before
// anything downstream sees it. Two records are considered the same paper iff
// their normalized titles are equal; no other field participates in identity.
package domain

import (
	"strings"
	"time"
	"unicode"
)

// SourceType identifies an external literature source.
// These values appear in snapshots and exports and must stay stable.
type SourceType string

const (
	SourceTypePubMed  SourceType = "pubmed"
	SourceTypeBioRxiv SourceType = "biorxiv"
	SourceTypeScholar SourceType = "scholar"
)

// AllSourceTypes lists every known source in the fixed dispatch order
// (alphabetical by identifier).
func AllSourceTypes() []SourceType {
	return []SourceType{SourceTypeBioRxiv, SourceTypePubMed, SourceTypeScholar}
}

// ParseSourceType converts a user-supplied string into a SourceType.
// Returns false if the string does not name a known source.
func ParseSourceType(s string) (SourceType, bool) {
	switch SourceType(strings.ToLower(strings.TrimSpace(s))) {
	case SourceTypePubMed:
		return SourceTypePubMed, true
	case SourceTypeBioRxiv:
		return SourceTypeBioRxiv, true
	case SourceTypeScholar:
		return SourceTypeScholar, true
	default:
		return "", false
	}
}

// Record is one normalized literature entry produced by a source adapter.
//
// PublishedDate and Category are pointers because only some sources supply
// them; nil means "source does not provide this field", which is distinct
// from an empty value.
type Record struct {
	Source        SourceType `json:"source"`
	ID            string     `json:"id,omitempty"`
	Title         string     `json:"title"`
	Authors       []string   `json:"authors,omitempty"`
	Abstract      string     `json:"abstract,omitempty"`
	URL           string     `json:"url,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	Category      *string    `json:"category,omitempty"`
}

// DedupKey returns the normalized-title key used for cross-source
// deduplication.
func (r *Record) DedupKey() string {
	return NormalizeTitle(r.Title)
}

// NormalizeTitle folds a title into its dedup key: lowercase, punctuation
// stripped, runs of whitespace collapsed to a single space, leading and
// trailing whitespace removed.
//
// "CRISPR Gene Editing", "crispr gene editing" and "CRISPR  Gene Editing."
// all normalize to "crispr gene editing".
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))

	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		default:
			// Punctuation and symbols do not contribute to identity.
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// Package sources defines the contract that every literature source adapter
// implements, plus the shared HTTP client, rate limiting, and registry used
// by the adapters.
//
// Each external database (PubMed, bioRxiv, the scholar gateway) lives in its
// own subpackage and normalizes upstream responses into domain.Record inside
// the adapter; nothing downstream ever sees a source-specific wire shape.
//
// Example usage:
//
//	src := pubmed.New(cfg)
//	params := sources.SearchParams{
//		Terms:      plan.Terms(),
//		MaxResults: 20,
//	}
//	result, err := src.Search(ctx, params)
package sources

import (
	"context"
	"time"

	"github.com/litscout/litscout/internal/domain"
)

// SearchParams defines the parameters for one source search task.
type SearchParams struct {
	// Terms are the query-plan search terms, raw query first. Adapters
	// decide how to combine them: PubMed ORs them into one expression,
	// bioRxiv matches any term client-side, the scholar gateway ORs them.
	// Must be non-empty.
	Terms []string

	// MaxResults caps the number of records the adapter returns. A value
	// of 0 uses the source's default.
	MaxResults int
}

// Query returns the terms joined with the given separator, for adapters
// that submit a single combined expression upstream.
func (p SearchParams) Query(sep string) string {
	switch len(p.Terms) {
	case 0:
		return ""
	case 1:
		return p.Terms[0]
	}
	out := p.Terms[0]
	for _, t := range p.Terms[1:] {
		out += sep + t
	}
	return out
}

// SearchResult contains the normalized records from one source search.
type SearchResult struct {
	// Records are the normalized records, in upstream order. Empty when
	// the source genuinely has no matches; that is not an error.
	Records []*domain.Record

	// TotalResults is the total match count reported by the source, which
	// may exceed len(Records) and may be an estimate.
	TotalResults int

	// Source identifies which adapter produced these records.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search, including
	// network latency and response parsing.
	SearchDuration time.Duration
}

// Source is the capability every literature source adapter provides.
type Source interface {
	// Search queries the source for records matching the given parameters.
	// The deadline for ceasing upstream requests arrives through ctx;
	// adapters must stop issuing new requests once ctx is done.
	//
	// Unrecoverable failures return a *domain.ProviderError. A search
	// with no upstream matches returns an empty result and a nil error.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and reporting.
	Name() string

	// IsEnabled reports whether this source can currently be searched.
	// A source may be disabled by configuration or a missing credential.
	IsEnabled() bool
}

// StreamingSource is implemented by adapters that can yield records
// incrementally as pages arrive. The deadline guard uses it to harvest
// partial results when a search is cut off.
type StreamingSource interface {
	Source

	// SearchStream runs the same search as Search but calls emit for each
	// record as soon as it is normalized. emit is called from the adapter's
	// own goroutine, in upstream order, and never after SearchStream returns.
	SearchStream(ctx context.Context, params SearchParams, emit func(*domain.Record)) error
}

package biorxiv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/sources"
)

const (
	// DefaultBaseURL is the default bioRxiv API base URL.
	DefaultBaseURL = "https://api.biorxiv.org"

	// DefaultServer is the preprint server name used in the details path.
	DefaultServer = "biorxiv"

	// DefaultRateLimit paces page fetches at one request per second.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum matched results per search.
	DefaultMaxResults = 20

	// DefaultWindow is the trailing publication window searched.
	DefaultWindow = 365 * 24 * time.Hour

	// PageSize is the number of preprints per details page.
	PageSize = 100

	// contentURLFormat builds the public content URL for a DOI.
	contentURLFormat = "https://www.biorxiv.org/content/%sv1"

	// sourceName is the human-readable name for this source.
	sourceName = "bioRxiv"
)

// Config holds configuration for the bioRxiv client.
type Config struct {
	// BaseURL is the bioRxiv API base URL.
	BaseURL string

	// Server is the preprint server segment of the details path.
	Server string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the maximum page requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default maximum matched results per search.
	MaxResults int

	// Window is the trailing publication window to scan.
	Window time.Duration

	// MaxPages bounds how many interval pages a single search will scan
	// before giving up on finding more matches. Zero means no bound; the
	// deadline guard is the outer stop.
	MaxPages int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
}

// Client implements sources.Source and sources.StreamingSource for bioRxiv.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	now        func() time.Time
}

var (
	_ sources.Source          = (*Client)(nil)
	_ sources.StreamingSource = (*Client)(nil)
)

// New creates a new bioRxiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "litscout/1.0",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// NewWithHTTPClient creates a new bioRxiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Search pages through the trailing publication window and returns preprints
// whose title or abstract contains any query-plan term.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	startTime := time.Now()

	var records []*domain.Record
	total, err := c.scan(ctx, params, func(r *domain.Record) {
		records = append(records, r)
	})
	if err != nil {
		return nil, err
	}

	return &sources.SearchResult{
		Records:        records,
		TotalResults:   total,
		Source:         domain.SourceTypeBioRxiv,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SearchStream runs the same scan as Search, emitting each matched record as
// its page is parsed. The deadline guard relies on this to harvest partial
// results when the scan is cut off.
func (c *Client) SearchStream(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) error {
	_, err := c.scan(ctx, params, emit)
	return err
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeBioRxiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// scan walks the details pages, emits matched records, and returns the
// interval total reported by the API.
func (c *Client) scan(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) (int, error) {
	if !c.config.Enabled {
		return 0, domain.ErrSourceDisabled
	}

	terms := lowerTerms(params.Terms)
	if len(terms) == 0 {
		return 0, domain.NewProviderError(domain.SourceTypeBioRxiv, domain.ErrorKindMalformed, "empty query plan", nil)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	to := c.now()
	from := to.Add(-c.config.Window)

	total := 0
	matched := 0
	for page := 0; ; page++ {
		if c.config.MaxPages > 0 && page >= c.config.MaxPages {
			return total, nil
		}
		// A cancelled context means the deadline guard cut us off; stop
		// issuing new upstream requests.
		if err := ctx.Err(); err != nil {
			return total, err
		}

		resp, err := c.fetchPage(ctx, from, to, page*PageSize)
		if err != nil {
			return total, err
		}

		if len(resp.Messages) > 0 {
			total = resp.Messages[0].TotalCount()
		}
		if len(resp.Collection) == 0 {
			return total, nil
		}

		for i := range resp.Collection {
			p := &resp.Collection[i]
			if !matchesAny(p, terms) {
				continue
			}
			emit(c.preprintToRecord(p))
			matched++
			if matched >= maxResults {
				return total, nil
			}
		}
	}
}

// fetchPage retrieves one details page for the interval.
func (c *Client) fetchPage(ctx context.Context, from, to time.Time, cursor int) (*DetailsResponse, error) {
	u, err := url.Parse(fmt.Sprintf("%s/details/%s/%s/%s/%d",
		strings.TrimRight(c.config.BaseURL, "/"),
		c.config.Server,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		cursor,
	))
	if err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeBioRxiv, domain.ErrorKindMalformed, "invalid base URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeBioRxiv, domain.ErrorKindNetwork, "creating request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.NewProviderError(domain.SourceTypeBioRxiv, domain.ErrorKindNetwork, "executing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewProviderError(
			domain.SourceTypeBioRxiv,
			domain.ErrorKindMalformed,
			"details page request failed",
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil),
		)
	}

	var details DetailsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&details); err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeBioRxiv, domain.ErrorKindMalformed, "decoding response", err)
	}

	return &details, nil
}

// preprintToRecord converts a Preprint to a domain.Record.
func (c *Client) preprintToRecord(p *Preprint) *domain.Record {
	rec := &domain.Record{
		Source:   domain.SourceTypeBioRxiv,
		ID:       p.DOI,
		Title:    strings.TrimSpace(p.Title),
		Authors:  splitAuthors(p.Authors),
		Abstract: strings.TrimSpace(p.Abstract),
	}

	if p.DOI != "" {
		rec.URL = fmt.Sprintf(contentURLFormat, p.DOI)
	}
	if t, err := time.Parse("2006-01-02", p.Date); err == nil {
		rec.PublishedDate = &t
	}
	if p.Category != "" {
		category := p.Category
		rec.Category = &category
	}

	return rec
}

// splitAuthors splits the semicolon-separated author string.
func splitAuthors(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// lowerTerms lowercases and drops empty terms.
func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// matchesAny reports whether any lowercase term appears in the preprint's
// title or abstract.
func matchesAny(p *Preprint, terms []string) bool {
	title := strings.ToLower(p.Title)
	abstract := strings.ToLower(p.Abstract)
	for _, t := range terms {
		if strings.Contains(title, t) || strings.Contains(abstract, t) {
			return true
		}
	}
	return false
}

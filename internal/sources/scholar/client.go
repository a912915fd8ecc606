package scholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/sources"
)

const (
	// DefaultBaseURL is the default gateway base URL.
	DefaultBaseURL = "https://serpapi.com"

	// DefaultMinInterval is the mandatory gap between consecutive gateway
	// requests. Bursts get the caller blocked.
	DefaultMinInterval = 2 * time.Second

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// PageSize is the number of hits requested per page.
	PageSize = 20

	// sourceName is the human-readable name for this source.
	sourceName = "Google Scholar"
)

// Config holds configuration for the scholar gateway client.
type Config struct {
	// BaseURL is the gateway base URL.
	BaseURL string

	// APIKey authenticates against the gateway. The source is disabled
	// without one.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MinInterval is the minimum gap between consecutive requests.
	MinInterval time.Duration

	// MaxResults is the default maximum results per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements sources.Source for the scholar gateway.
//
// It deliberately does not use the shared retrying HTTP client: a 429 or 403
// from the gateway means the caller is being blocked, and retrying inside the
// same run makes that worse. Pagination is strictly sequential, gated by a
// per-client interval limiter.
type Client struct {
	config     Config
	httpClient *http.Client
	gate       *sources.RateLimiter
}

var (
	_ sources.Source          = (*Client)(nil)
	_ sources.StreamingSource = (*Client)(nil)
)

// New creates a new scholar gateway client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		gate: sources.NewIntervalLimiter(cfg.MinInterval),
	}
}

// Search queries the gateway page by page until MaxResults hits are
// collected or the gateway runs out of results.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	if !c.IsEnabled() {
		return nil, domain.ErrSourceDisabled
	}

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
		Source:         domain.SourceTypeScholar,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SearchStream queries the gateway and hands each record to emit as soon as
// its page is decoded, so callers keep the records fetched before a failure
// or timeout.
func (c *Client) SearchStream(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) error {
	if !c.IsEnabled() {
		return domain.ErrSourceDisabled
	}
	_, err := c.scan(ctx, params, emit)
	return err
}

// scan pages through gateway results, emitting records until maxResults hits
// are collected or the gateway runs out. Returns the gateway's reported total.
func (c *Client) scan(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) (int, error) {
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	emitted := 0
	total := 0
	for start := 0; emitted < maxResults; start += PageSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		// The gate is what keeps us off the gateway's blocklist; every
		// upstream call waits its turn here.
		if err := c.gate.Wait(ctx); err != nil {
			return total, err
		}

		page, err := c.fetchPage(ctx, params.Query(" OR "), start)
		if err != nil {
			return total, err
		}

		total = page.SearchInformation.TotalResults
		if len(page.OrganicResults) == 0 {
			break
		}

		for i := range page.OrganicResults {
			emit(c.resultToRecord(&page.OrganicResults[i]))
			emitted++
			if emitted >= maxResults {
				break
			}
		}
	}

	return total, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled and has a credential.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// fetchPage retrieves one page of scholar hits.
func (c *Client) fetchPage(ctx context.Context, query string, start int) (*SearchResponse, error) {
	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/search")
	if err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindMalformed, "invalid base URL", err)
	}

	q := u.Query()
	q.Set("engine", "google_scholar")
	q.Set("q", query)
	q.Set("num", strconv.Itoa(PageSize))
	if start > 0 {
		q.Set("start", strconv.Itoa(start))
	}
	q.Set("api_key", c.config.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindNetwork, "creating request", err)
	}
	req.Header.Set("User-Agent", "litscout/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindNetwork, "executing request", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))

	switch resp.StatusCode {
	case http.StatusOK:
		// Fall through to decoding.
	case http.StatusUnauthorized:
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindAuth, "gateway rejected credentials",
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil))
	case http.StatusForbidden, http.StatusTooManyRequests:
		// Access denial is terminal for this run; the task fails and is
		// not retried.
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindRateLimited, "gateway denied access",
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil))
	default:
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindNetwork,
			fmt.Sprintf("unexpected status %d", resp.StatusCode),
			domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil))
	}

	if readErr != nil {
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindNetwork, "reading response", readErr)
	}

	var page SearchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindMalformed, "decoding response", err)
	}
	if page.Error != "" {
		return nil, domain.NewProviderError(domain.SourceTypeScholar, domain.ErrorKindMalformed, page.Error, nil)
	}

	return &page, nil
}

// resultToRecord converts an OrganicResult to a domain.Record.
func (c *Client) resultToRecord(r *OrganicResult) *domain.Record {
	id := r.ResultID
	if id == "" {
		id = r.Link
	}

	return &domain.Record{
		Source:   domain.SourceTypeScholar,
		ID:       id,
		Title:    strings.TrimSpace(r.Title),
		Authors:  extractAuthors(&r.PublicationInfo),
		Abstract: strings.TrimSpace(r.Snippet),
		URL:      r.Link,
	}
}

// extractAuthors prefers the structured author list and falls back to the
// name segment of the summary line ("A Author, B Author - Venue, 2021").
func extractAuthors(info *PublicationInfo) []string {
	if len(info.Authors) > 0 {
		authors := make([]string, 0, len(info.Authors))
		for _, a := range info.Authors {
			if a.Name != "" {
				authors = append(authors, a.Name)
			}
		}
		return authors
	}

	summary := info.Summary
	if summary == "" {
		return nil
	}
	if idx := strings.Index(summary, " - "); idx >= 0 {
		summary = summary[:idx]
	}

	var authors []string
	for _, part := range strings.Split(summary, ",") {
		if name := strings.TrimSpace(part); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

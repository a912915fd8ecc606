package pubmed

import (
	"context"
	"encoding/xml"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit paces esearch/efetch calls at 2 requests per second,
	// under NCBI's 3 req/s limit without an API key.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// FetchBatchSize is the number of PMIDs fetched per efetch call.
	FetchBatchSize = 20

	// MaxResultsLimit is the maximum results allowed per esearch by the API.
	MaxResultsLimit = 10000

	// articleURLPrefix builds the canonical article URL for a PMID.
	articleURLPrefix = "https://pubmed.ncbi.nlm.nih.gov/"

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Email identifies the caller to NCBI, sent as the tool contact.
	Email string

	// APIKey is the NCBI API key for higher rate limits. Optional.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default maximum results per search.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
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
}

// Client implements the sources.Source interface for PubMed.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Source.
var _ sources.Source = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "litscout/1.0",
	}

	return &Client{
		config:     cfg,
		httpClient: sources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search queries PubMed for records matching the given parameters.
// It performs a two-step search:
//  1. esearch.fcgi resolves the query to matching PMIDs
//  2. efetch.fcgi retrieves article metadata, in batches that count
//     against MaxResults
//
// Query-plan terms are combined into one OR expression so a run issues a
// single search per source regardless of how many variants the optimizer
// produced.
func (c *Client) Search(ctx context.Context, params sources.SearchParams) (*sources.SearchResult, error) {
	records, total, elapsed, err := c.search(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	return &sources.SearchResult{
		Records:        records,
		TotalResults:   total,
		Source:         domain.SourceTypePubMed,
		SearchDuration: elapsed,
	}, nil
}

// SearchStream runs the same search as Search, emitting each record as its
// efetch batch is parsed.
func (c *Client) SearchStream(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) error {
	_, _, _, err := c.search(ctx, params, emit)
	return err
}

var _ sources.StreamingSource = (*Client)(nil)

func (c *Client) search(ctx context.Context, params sources.SearchParams, emit func(*domain.Record)) ([]*domain.Record, int, time.Duration, error) {
	if !c.config.Enabled {
		return nil, 0, 0, domain.ErrSourceDisabled
	}

	startTime := time.Now()

	searchResult, err := c.esearch(ctx, params)
	if err != nil {
		return nil, 0, 0, c.wrap("esearch failed", err)
	}

	// Phrases not found are a zero-match search, not an error.
	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		return nil, 0, time.Since(startTime), nil
	}

	pmids := searchResult.IDList.IDs
	if len(pmids) == 0 {
		return nil, searchResult.Count, time.Since(startTime), nil
	}

	// Fetch metadata in batches. Each batch counts against MaxResults and
	// the loop stops once the context deadline has passed, so a guard
	// cutoff stops new upstream requests between batches.
	records := make([]*domain.Record, 0, len(pmids))
	for start := 0; start < len(pmids); start += FetchBatchSize {
		if err := ctx.Err(); err != nil {
			return records, searchResult.Count, time.Since(startTime), err
		}

		end := start + FetchBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}

		articles, err := c.efetch(ctx, pmids[start:end])
		if err != nil {
			return records, searchResult.Count, time.Since(startTime), c.wrap("efetch failed", err)
		}

		for i := range articles.Articles {
			rec := c.articleToRecord(&articles.Articles[i])
			records = append(records, rec)
			if emit != nil {
				emit(rec)
			}
		}
	}

	return records, searchResult.Count, time.Since(startTime), nil
}

// GetByID retrieves a specific record by its PubMed ID (PMID).
func (c *Client) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	if !c.config.Enabled {
		return nil, domain.ErrSourceDisabled
	}

	articles, err := c.efetch(ctx, []string{id})
	if err != nil {
		return nil, c.wrap("efetch failed", err)
	}

	if len(articles.Articles) == 0 {
		return nil, fmt.Errorf("pmid %s: %w", id, domain.ErrNotFound)
	}

	return c.articleToRecord(&articles.Articles[0]), nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// wrap classifies an upstream failure into the provider error taxonomy.
func (c *Client) wrap(msg string, err error) error {
	kind := domain.ErrorKindNetwork

	var apiErr *domain.ExternalAPIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			kind = domain.ErrorKindAuth
		} else {
			kind = domain.ErrorKindMalformed
		}
	} else if strings.Contains(err.Error(), "parse XML") {
		kind = domain.ErrorKindMalformed
	}

	return domain.NewProviderError(domain.SourceTypePubMed, kind, msg, err)
}

// esearch performs a search query and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, params sources.SearchParams) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", params.Query(" OR "))
	q.Set("retmode", "xml")
	q.Set("retmax", strconv.Itoa(maxResults))
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves article metadata for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML body into out.
func (c *Client) getXML(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToRecord converts a PubmedArticle to a domain.Record.
func (c *Client) articleToRecord(article *PubmedArticle) *domain.Record {
	citation := article.MedlineCitation

	return &domain.Record{
		Source:   domain.SourceTypePubMed,
		ID:       citation.PMID.Value,
		Title:    strings.TrimSpace(citation.Article.ArticleTitle),
		Authors:  extractAuthors(citation.Article.AuthorList),
		Abstract: extractAbstract(citation.Article.Abstract),
		URL:      articleURLPrefix + citation.PMID.Value,
	}
}

// extractAbstract concatenates abstract sections into a single string,
// prefixing labeled sections with their label.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors converts PubMed authors to display names, ordered as
// upstream returns them.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	return authors
}

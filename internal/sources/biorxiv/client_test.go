package biorxiv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litscout/litscout/internal/domain"
	"github.com/litscout/litscout/internal/sources"
)

// detailsPage builds one details API page.
func detailsPage(total int, preprints []Preprint) DetailsResponse {
	return DetailsResponse{
		Messages: []Message{
			{Status: "ok", Total: strconv.Itoa(total), Count: len(preprints)},
		},
		Collection: preprints,
	}
}

// newTestClient creates a client against the mock server with fast limits.
func newTestClient(serverURL string, maxResults int) *Client {
	cfg := Config{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		BurstSize:  1000,
		MaxResults: maxResults,
		Enabled:    true,
	}

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "litscout-test/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

func TestClient_Search(t *testing.T) {
	t.Run("filters by term and normalizes records", func(t *testing.T) {
		page := detailsPage(3, []Preprint{
			{
				DOI:      "10.1101/2025.03.01.640001",
				Title:    "CRISPR screening in organoids",
				Authors:  "Smith, J.; Lee, K.",
				Date:     "2025-03-01",
				Category: "genomics",
				Abstract: "A CRISPR screen identifies regulators.",
			},
			{
				DOI:      "10.1101/2025.03.02.640002",
				Title:    "Unrelated neuroscience preprint",
				Abstract: "Nothing about gene editing here.",
			},
			{
				DOI:      "10.1101/2025.03.03.640003",
				Title:    "Mapping chromatin",
				Abstract: "We apply crispr perturbations to chromatin loops.",
			},
		})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.True(t, strings.HasPrefix(r.URL.Path, "/details/biorxiv/"))
			if strings.HasSuffix(r.URL.Path, "/0") {
				require.NoError(t, json.NewEncoder(w).Encode(page))
				return
			}
			require.NoError(t, json.NewEncoder(w).Encode(detailsPage(3, nil)))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 20)
		result, err := client.Search(context.Background(), sources.SearchParams{
			Terms: []string{"CRISPR"},
		})

		require.NoError(t, err)
		require.Len(t, result.Records, 2, "term match covers title and abstract, case-insensitive")
		assert.Equal(t, 3, result.TotalResults)
		assert.Equal(t, domain.SourceTypeBioRxiv, result.Source)

		first := result.Records[0]
		assert.Equal(t, "10.1101/2025.03.01.640001", first.ID)
		assert.Equal(t, []string{"Smith, J.", "Lee, K."}, first.Authors)
		assert.Equal(t, "https://www.biorxiv.org/content/10.1101/2025.03.01.640001v1", first.URL)
		require.NotNil(t, first.PublishedDate)
		assert.Equal(t, 2025, first.PublishedDate.Year())
		require.NotNil(t, first.Category)
		assert.Equal(t, "genomics", *first.Category)

		third := result.Records[1]
		assert.Nil(t, third.PublishedDate, "missing date stays absent")
		assert.Nil(t, third.Category, "missing category stays absent")
	})

	t.Run("stops paging at max results", func(t *testing.T) {
		var pagesServed int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pagesServed++
			preprints := make([]Preprint, PageSize)
			for i := range preprints {
				preprints[i] = Preprint{
					DOI:   "10.1101/x" + strconv.Itoa(i),
					Title: "antibiotic resistance study " + strconv.Itoa(i),
				}
			}
			require.NoError(t, json.NewEncoder(w).Encode(detailsPage(1000, preprints)))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 5)
		result, err := client.Search(context.Background(), sources.SearchParams{
			Terms:      []string{"antibiotic"},
			MaxResults: 5,
		})

		require.NoError(t, err)
		assert.Len(t, result.Records, 5)
		assert.Equal(t, 1, pagesServed, "the first page already satisfied max results")
	})

	t.Run("empty collection ends the scan with no error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode(detailsPage(0, nil)))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 20)
		result, err := client.Search(context.Background(), sources.SearchParams{Terms: []string{"anything"}})

		require.NoError(t, err)
		assert.Empty(t, result.Records)
	})

	t.Run("non-OK status becomes a provider error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		// MaxRetries on the shared client make 5xx slow; use a client with
		// a single attempt by pointing at a 404 instead.
		client := newTestClient(server.URL, 20)
		client.httpClient = sources.NewHTTPClient(sources.HTTPClientConfig{
			RateLimit:  1000,
			BurstSize:  1000,
			MaxRetries: 1,
			RetryDelay: time.Millisecond,
		})

		_, err := client.Search(context.Background(), sources.SearchParams{Terms: []string{"q"}})

		require.Error(t, err)
		var pe *domain.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, domain.SourceTypeBioRxiv, pe.Source)
	})

	t.Run("disabled source returns error", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Search(context.Background(), sources.SearchParams{Terms: []string{"q"}})

		assert.ErrorIs(t, err, domain.ErrSourceDisabled)
	})
}

func TestClient_SearchStream(t *testing.T) {
	t.Run("emits records as pages are parsed", func(t *testing.T) {
		page := detailsPage(2, []Preprint{
			{DOI: "10.1101/a", Title: "phage therapy advances"},
			{DOI: "10.1101/b", Title: "phage cocktails in clinical trials"},
		})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/0") {
				require.NoError(t, json.NewEncoder(w).Encode(page))
				return
			}
			require.NoError(t, json.NewEncoder(w).Encode(detailsPage(2, nil)))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 20)

		var streamed []*domain.Record
		err := client.SearchStream(context.Background(), sources.SearchParams{
			Terms: []string{"phage"},
		}, func(r *domain.Record) {
			streamed = append(streamed, r)
		})

		require.NoError(t, err)
		require.Len(t, streamed, 2)
		assert.Equal(t, "10.1101/a", streamed[0].ID)
	})

	t.Run("cancelled context stops paging and surfaces the cause", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			preprints := make([]Preprint, PageSize)
			for i := range preprints {
				preprints[i] = Preprint{DOI: "10.1101/p" + strconv.Itoa(i), Title: "no match here"}
			}
			require.NoError(t, json.NewEncoder(w).Encode(detailsPage(100000, preprints)))
		}))
		defer server.Close()

		client := newTestClient(server.URL, 20)
		ctx, cancel := context.WithCancel(context.Background())

		emitted := 0
		cancel()
		err := client.SearchStream(ctx, sources.SearchParams{Terms: []string{"zzz"}}, func(*domain.Record) {
			emitted++
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, emitted)
	})
}

func TestMessage_TotalCount(t *testing.T) {
	assert.Equal(t, 42, Message{Total: "42"}.TotalCount())
	assert.Equal(t, 0, Message{Total: "many"}.TotalCount())
	assert.Equal(t, 0, Message{}.TotalCount())
}

func TestClient_Metadata(t *testing.T) {
	client := New(Config{Enabled: true})

	assert.Equal(t, domain.SourceTypeBioRxiv, client.SourceType())
	assert.Equal(t, "bioRxiv", client.Name())
	assert.True(t, client.IsEnabled())
}

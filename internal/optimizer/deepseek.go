package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default values for the DeepSeek provider.
const (
	defaultDeepSeekBaseURL    = "https://api.deepseek.com/v1"
	defaultDeepSeekModel      = "deepseek-chat"
	defaultDeepSeekMaxTokens  = 512
	defaultDeepSeekRetryDelay = 2 * time.Second
)

// chatRequest represents the chat completions API request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat specifies the output format for the API response.
type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents the chat completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// deepSeekErrorResponse represents an error response from the API.
type deepSeekErrorResponse struct {
	Error deepSeekErrorDetail `json:"error"`
}

// deepSeekErrorDetail contains error details from the API.
type deepSeekErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// synonymResponse is the expected JSON structure from the model.
type synonymResponse struct {
	Synonyms []string `json:"synonyms"`
}

// APIError represents an error returned by the synonym provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error may succeed on retry: rate limiting
// (429), server errors (5xx), or no HTTP response at all (StatusCode 0).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// isTransientError reports whether err is a transient APIError.
func isTransientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsTransient()
}

// DeepSeekConfig holds the parameters needed to create a DeepSeek provider.
type DeepSeekConfig struct {
	// APIKey is the DeepSeek API key.
	APIKey string
	// Model is the model identifier (empty means default).
	Model string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
	// Temperature controls sampling randomness.
	Temperature float64
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries for transient errors.
	MaxRetries int
}

// DeepSeekProvider implements SynonymGenerator using the DeepSeek chat
// completions API.
type DeepSeekProvider struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxRetries  int
	retryDelay  time.Duration
}

var _ SynonymGenerator = (*DeepSeekProvider)(nil)

// NewDeepSeekProvider creates a new DeepSeek synonym generation provider.
//
// The provider uses the chat completions API with JSON response format for
// structured synonym output. Transient API errors are retried.
func NewDeepSeekProvider(cfg DeepSeekConfig) *DeepSeekProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDeepSeekBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultDeepSeekModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &DeepSeekProvider{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxRetries:  maxRetries,
		retryDelay:  defaultDeepSeekRetryDelay,
	}
}

// GenerateSynonyms asks the model for alternative phrasings of the query.
//
// It sends a request to the chat completions API with JSON response format and
// parses the structured response. Transient errors (5xx and 429) are retried
// up to maxRetries times with increasing delay.
func (p *DeepSeekProvider) GenerateSynonyms(ctx context.Context, query string) ([]string, error) {
	systemPrompt, userPrompt := buildSynonymPrompt(query)

	chatReq := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: p.temperature,
		MaxTokens:   defaultDeepSeekMaxTokens,
		ResponseFormat: &responseFormat{
			Type: "json_object",
		},
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("deepseek: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		synonyms, err := p.doRequest(ctx, chatReq)
		if err == nil {
			return synonyms, nil
		}

		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("deepseek: exhausted %d retries: %w", p.maxRetries, lastErr)
}

// Provider returns the name of the synonym provider.
func (p *DeepSeekProvider) Provider() string {
	return "deepseek"
}

// Model returns the model identifier being used.
func (p *DeepSeekProvider) Model() string {
	return p.model
}

// doRequest performs a single API request to the chat completions endpoint.
func (p *DeepSeekProvider) doRequest(ctx context.Context, chatReq chatRequest) ([]string, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("deepseek: failed to marshal request: %w", err)
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deepseek: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &APIError{Provider: "deepseek", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("deepseek: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseDeepSeekAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("deepseek: failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("deepseek: empty choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	var parsed synonymResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("deepseek: failed to parse synonym JSON response: %w", err)
	}

	if len(parsed.Synonyms) == 0 {
		return nil, fmt.Errorf("deepseek: model returned no synonyms")
	}

	return parsed.Synonyms, nil
}

// parseDeepSeekAPIError parses an API error from the response status and body.
func parseDeepSeekAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "deepseek",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp deepSeekErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
	}

	return apiErr
}

// buildSynonymPrompt builds the system and user prompts for synonym
// generation.
func buildSynonymPrompt(query string) (systemPrompt, userPrompt string) {
	var sb strings.Builder
	sb.WriteString("You are a scholarly search specialist. Given a research query, ")
	sb.WriteString("produce alternative phrasings and synonyms that would retrieve ")
	sb.WriteString("the same literature from academic databases such as PubMed, ")
	sb.WriteString("bioRxiv, and Google Scholar.\n\n")
	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"synonyms": ["phrase one", "phrase two"]}`)
	sb.WriteString("\n\n")
	sb.WriteString("Guidelines:\n")
	sb.WriteString("1. Each synonym must be a complete, searchable phrase.\n")
	sb.WriteString("2. Prefer established scientific nomenclature.\n")
	sb.WriteString("3. Include both abbreviated and expanded forms when relevant.\n")
	sb.WriteString("4. Do not include the original query itself.\n")
	systemPrompt = sb.String()

	userPrompt = fmt.Sprintf("Generate up to %d synonym phrases for this research query:\n---\n%s\n---", DefaultMaxVariants, query)
	return systemPrompt, userPrompt
}

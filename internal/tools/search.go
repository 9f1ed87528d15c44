// Package tools wraps the external capabilities an agent may invoke behind
// narrow contracts. Adapters validate input up front, call a proxy endpoint
// and surface non-2xx responses as UpstreamError; retry policy is left to the
// caller.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SearchResult is one hit from the vector-search endpoint.
type SearchResult struct {
	ID       string                 `json:"id"`
	Title    string                 `json:"title,omitempty"`
	Snippet  string                 `json:"snippet,omitempty"`
	Score    float64                `json:"score,omitempty"`
	URL      string                 `json:"url,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchOptions tune one search call.
type SearchOptions struct {
	TopK   int
	Hybrid bool
}

// DefaultTopK is used when the caller does not set TopK.
const DefaultTopK = 5

// SearchClient queries the vector-search proxy.
type SearchClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSearchClient creates a search adapter against baseURL.
func NewSearchClient(baseURL string, logger *slog.Logger) *SearchClient {
	return &SearchClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs one query. A blank query is a ValidationError; a non-2xx
// response is an UpstreamError carrying status and body.
func (c *SearchClient) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("topK", strconv.Itoa(topK))
	params.Set("hybrid", strconv.FormatBool(opts.Hybrid))

	endpoint := c.baseURL + "/api/vector-search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.logger.Info("vector search completed", "query", query, "results", len(parsed.Results))
	return parsed.Results, nil
}

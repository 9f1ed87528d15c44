package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Page is the sanitized result of fetching one URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	ContentText string `json:"contentText"`
	WordCount   int    `json:"wordCount"`
}

// FetchClient fetches a page through the fetch-and-sanitize proxy so raw
// HTML never reaches the agent. With an empty proxy URL it falls back to
// fetching and extracting locally.
type FetchClient struct {
	proxyURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetchClient creates a fetch adapter. proxyURL may be empty to enable
// the local extractor.
func NewFetchClient(proxyURL string, logger *slog.Logger) *FetchClient {
	return &FetchClient{
		proxyURL:   strings.TrimRight(proxyURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

type fetchRequest struct {
	URL string `json:"url"`
}

type fetchResponse struct {
	Title       string `json:"title"`
	ContentText string `json:"contentText"`
}

// FetchAndExtract validates the URL, retrieves the page text and derives the
// word count. Validation failures surface before any network call.
func (c *FetchClient) FetchAndExtract(ctx context.Context, rawURL string) (*Page, error) {
	if err := validateFetchURL(rawURL); err != nil {
		return nil, err
	}

	var title, content string
	var err error
	if c.proxyURL != "" {
		title, content, err = c.fetchViaProxy(ctx, rawURL)
	} else {
		title, content, err = c.fetchLocal(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}

	page := &Page{
		URL:         rawURL,
		Title:       title,
		ContentText: content,
		WordCount:   len(strings.Fields(content)),
	}
	c.logger.Info("fetched page", "url", rawURL, "words", page.WordCount)
	return page, nil
}

func validateFetchURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "must be an http(s) URL"}
	}
	return nil
}

func (c *FetchClient) fetchViaProxy(ctx context.Context, rawURL string) (string, string, error) {
	payload, err := json.Marshal(fetchRequest{URL: rawURL})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL+"/api/fetch", bytes.NewBuffer(payload))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed fetchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return parsed.Title, parsed.ContentText, nil
}

func (c *FetchClient) fetchLocal(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; AgentHub/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20)) // 2MB cap
	if err != nil {
		return "", "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") {
		return "", string(body), nil
	}
	return extractReadableText(string(body))
}

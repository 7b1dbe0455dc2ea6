// Package search derives a web query from the conversation and resolves it.
package search

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
)

const defaultGoogleURL = "https://www.googleapis.com/customsearch/v1"

// WebResult is one item returned by a web search, in provider order.
type WebResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// WebSearcher runs a web search.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]WebResult, error)
}

// GoogleSearcher queries the Custom Search JSON API.
type GoogleSearcher struct {
	endpoint   string
	apiKey     string
	engineID   string
	httpClient *http.Client
}

// NewGoogleSearcher creates a searcher. An empty endpoint uses the public API.
func NewGoogleSearcher(endpoint, apiKey, engineID string, timeout time.Duration) *GoogleSearcher {
	if endpoint == "" {
		endpoint = defaultGoogleURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleSearcher{
		endpoint:   endpoint,
		apiKey:     apiKey,
		engineID:   engineID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type googleResponse struct {
	Items []WebResult `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search returns the results for query in the order the API ranks them.
func (g *GoogleSearcher) Search(ctx context.Context, query string) ([]WebResult, error) {
	if g.apiKey == "" || g.engineID == "" {
		return nil, errors.New("search API key and engine id are required")
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var out googleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("search returned %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("search returned %d: %s", out.Error.Code, strings.TrimSpace(out.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	return out.Items, nil
}

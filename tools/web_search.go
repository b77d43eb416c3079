package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nachoal/mini-agent-go/tools/base"
)

const (
	defaultZAISearchURL    = "https://api.z.ai/api/paas/v4/web_search"
	defaultGoogleSearchURL = "https://www.googleapis.com/customsearch/v1"
	maxSearchResults       = 10
)

// SearchResult is one web.search hit
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at,omitempty"`
}

// SearchProvider runs a single query against an external search API
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, count int, recency string) ([]SearchResult, error)
}

// WebSearchParams are the arguments of web.search
type WebSearchParams struct {
	Query   string `json:"query" description:"Search query"`
	Count   int    `json:"count,omitempty" schema:"min:1,max:10" description:"Number of results (default 5, at most 10)"`
	Recency string `json:"recency,omitempty" schema:"enum:day|week|month|year" description:"Only return results published within this period"`
}

// WebSearchTool searches the web through the configured provider
type WebSearchTool struct {
	base.BaseTool
	provider SearchProvider
}

// Parameters returns the parameters struct
func (t *WebSearchTool) Parameters() interface{} {
	return &WebSearchParams{}
}

// Execute performs one search and returns the ordered results
func (t *WebSearchTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args WebSearchParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, NewToolError(KindInvalidArguments, "query cannot be empty")
	}
	count := args.Count
	if count <= 0 {
		count = 5
	}
	if count > maxSearchResults {
		count = maxSearchResults
	}

	inv.Report("searching %s for %q", t.provider.Name(), query)
	results, err := t.provider.Search(ctx, query, count, args.Recency)
	if err != nil {
		return nil, err
	}
	if len(results) > count {
		results = results[:count]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// ZAISearch queries the Z.ai web_search endpoint
type ZAISearch struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewZAISearch creates a Z.ai search provider; an empty endpoint uses the
// public API
func NewZAISearch(apiKey, endpoint string) *ZAISearch {
	if endpoint == "" {
		endpoint = defaultZAISearchURL
	}
	return &ZAISearch{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

// Name returns the provider name
func (z *ZAISearch) Name() string { return "zai" }

var zaiRecency = map[string]string{
	"day":   "oneDay",
	"week":  "oneWeek",
	"month": "oneMonth",
	"year":  "oneYear",
}

// Search performs the query
func (z *ZAISearch) Search(ctx context.Context, query string, count int, recency string) ([]SearchResult, error) {
	if z.apiKey == "" {
		return nil, NewToolError(KindPermissionDenied, "Z.ai search is not configured").
			WithDetail("help", "set ZAI_API_KEY")
	}

	filter := "noLimit"
	if r, ok := zaiRecency[recency]; ok {
		filter = r
	}
	payload, err := json.Marshal(map[string]interface{}{
		"search_engine":         "search-prime",
		"search_query":          query,
		"count":                 count,
		"search_recency_filter": filter,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+z.apiKey)

	body, err := doSearchRequest(z.client, req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		SearchResult []struct {
			Title       string `json:"title"`
			Content     string `json:"content"`
			Link        string `json:"link"`
			PublishDate string `json:"publish_date"`
		} `json:"search_result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.SearchResult))
	for _, r := range resp.SearchResult {
		results = append(results, SearchResult{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Content,
			PublishedAt: r.PublishDate,
		})
	}
	return results, nil
}

// GoogleSearch queries the Google Custom Search API
type GoogleSearch struct {
	client         *http.Client
	endpoint       string
	apiKey         string
	searchEngineID string
}

// NewGoogleSearch creates a Google Custom Search provider
func NewGoogleSearch(apiKey, searchEngineID, endpoint string) *GoogleSearch {
	if endpoint == "" {
		endpoint = defaultGoogleSearchURL
	}
	return &GoogleSearch{
		client:         &http.Client{Timeout: 10 * time.Second},
		endpoint:       endpoint,
		apiKey:         apiKey,
		searchEngineID: searchEngineID,
	}
}

// Name returns the provider name
func (g *GoogleSearch) Name() string { return "google" }

// Search performs the query
func (g *GoogleSearch) Search(ctx context.Context, query string, count int, recency string) ([]SearchResult, error) {
	if g.apiKey == "" || g.searchEngineID == "" {
		return nil, NewToolError(KindPermissionDenied, "Google Search API credentials not configured").
			WithDetail("help", "set GOOGLE_API_KEY and GOOGLE_CX")
	}

	params := url.Values{}
	params.Add("key", g.apiKey)
	params.Add("cx", g.searchEngineID)
	params.Add("q", query)
	params.Add("num", strconv.Itoa(count))
	if recency != "" {
		params.Add("dateRestrict", recency[:1]+"1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := doSearchRequest(g.client, req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Pagemap struct {
				Metatags []map[string]string `json:"metatags,omitempty"`
			} `json:"pagemap,omitempty"`
		} `json:"items"`
		Error struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, fmt.Errorf("google search: %s", resp.Error.Message)
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		r := SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet}
		if len(item.Pagemap.Metatags) > 0 {
			r.PublishedAt = item.Pagemap.Metatags[0]["article:published_time"]
		}
		results = append(results, r)
	}
	return results, nil
}

func doSearchRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

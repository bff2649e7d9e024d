// Package research gathers competitive context for keyword clusters:
// web search results for the top keywords and the structure of the
// pages those results point at.
package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultSearchBaseURL = "https://serpapi.com/search.json"
	defaultResultCount   = 5
	searchMaxRetries     = 3
	searchTimeout        = 10 * time.Second
	rateLimitDelay       = time.Second

	searchCacheTTL = time.Hour
)

// SearchResult is one organic hit for a query.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

// Searcher finds top-ranking pages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// SearchConfig controls the SerpAPI client.
type SearchConfig struct {
	APIKey  string
	BaseURL string
}

// SerpClient queries the SerpAPI Google engine. It spaces requests out
// by a fixed delay and retries transient failures with backoff.
type SerpClient struct {
	apiKey  string
	baseURL string
	client  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewSerpClient builds a search client. The API key may be empty, in
// which case every search fails and callers fall back to empty results.
func NewSerpClient(cfg SearchConfig) *SerpClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultSearchBaseURL
	}
	return &SerpClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: searchTimeout},
	}
}

// Search runs a single query and returns up to count organic results.
func (c *SerpClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("search API key not configured")
	}
	if count <= 0 {
		count = defaultResultCount
	}

	if err := c.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count))
	params.Set("engine", "google")
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < searchMaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		results, retry, err := c.attemptSearch(ctx, reqURL)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, fmt.Errorf("search failed after %d attempts: %w", searchMaxRetries, lastErr)
}

func (c *SerpClient) attemptSearch(ctx context.Context, reqURL string) ([]SearchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload struct {
			OrganicResults []struct {
				Title   string `json:"title"`
				Link    string `json:"link"`
				Snippet string `json:"snippet"`
			} `json:"organic_results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, false, fmt.Errorf("decoding search response: %w", err)
		}
		results := make([]SearchResult, 0, len(payload.OrganicResults))
		for _, r := range payload.OrganicResults {
			results = append(results, SearchResult{
				Title:       r.Title,
				URL:         r.Link,
				Description: r.Snippet,
				Position:    len(results) + 1,
			})
		}
		return results, false, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("search API rate limited (429)")

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, false, fmt.Errorf("search API error %d: %s", resp.StatusCode, string(body))
	}
}

func (c *SerpClient) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	var wait time.Duration
	if elapsed < rateLimitDelay {
		wait = rateLimitDelay - elapsed
	}
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SearchKeywords searches every keyword, mapping each to its results.
// Individual failures degrade to empty result lists rather than
// aborting the whole research step.
func SearchKeywords(ctx context.Context, s Searcher, keywords []string, count int) map[string][]SearchResult {
	results := make(map[string][]SearchResult, len(keywords))
	for _, kw := range keywords {
		hits, err := s.Search(ctx, kw, count)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: search for %q failed: %v\n", kw, err)
			results[kw] = nil
			continue
		}
		results[kw] = hits
	}
	return results
}

// CachingSearcher wraps a Searcher with an in-memory cache so repeated
// runs over the same keywords skip the paid API.
type CachingSearcher struct {
	inner Searcher
	cache *gocache.Cache
}

func NewCachingSearcher(inner Searcher) *CachingSearcher {
	return &CachingSearcher{
		inner: inner,
		cache: gocache.New(searchCacheTTL, 10*time.Minute),
	}
}

func (c *CachingSearcher) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	key := searchCacheKey(query, count)
	if cached, ok := c.cache.Get(key); ok {
		if results, ok := cached.([]SearchResult); ok {
			return results, nil
		}
	}

	results, err := c.inner.Search(ctx, query, count)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, results, gocache.DefaultExpiration)
	return results, nil
}

func searchCacheKey(query string, count int) string {
	sum := sha256.Sum256([]byte(query + "\x00" + strconv.Itoa(count)))
	return "search:" + hex.EncodeToString(sum[:])
}

package research

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	scrapeTimeout    = 10 * time.Second
	politenessDelay  = 500 * time.Millisecond
	minHeadingLength = 3
	scrapeUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Heading is one hN element extracted from a page, in document order
// per level.
type Heading struct {
	Level    string `json:"level"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// PageContent is the structural summary of a scraped page. Failures
// are recorded in place so one dead URL never sinks the batch.
type PageContent struct {
	URL          string    `json:"url"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	Headings     []Heading `json:"headings,omitempty"`
	HeadingCount int       `json:"heading_count"`
}

// Scraper extracts the structure of competitor pages.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) PageContent
}

// HTTPScraper fetches pages with a browser user agent and parses the
// title, meta description and h1 through h3 headings.
type HTTPScraper struct {
	client *http.Client
}

func NewHTTPScraper() *HTTPScraper {
	return &HTTPScraper{
		client: &http.Client{Timeout: scrapeTimeout},
	}
}

// Scrape fetches and parses a single URL. It never returns an error;
// failures are reported through the Success flag.
func (s *HTTPScraper) Scrape(ctx context.Context, pageURL string) PageContent {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return PageContent{URL: pageURL, Error: err.Error()}
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return PageContent{URL: pageURL, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PageContent{URL: pageURL, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return PageContent{URL: pageURL, Error: err.Error()}
	}

	headings := extractHeadings(doc)

	description, _ := doc.Find(`meta[name="description"]`).Attr("content")

	return PageContent{
		URL:          pageURL,
		Success:      true,
		Title:        normalizeText(doc.Find("title").First().Text()),
		Description:  description,
		Headings:     headings,
		HeadingCount: len(headings),
	}
}

func extractHeadings(doc *goquery.Document) []Heading {
	var headings []Heading
	for _, tag := range []string{"h1", "h2", "h3"} {
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			text := normalizeText(sel.Text())
			if len(text) > minHeadingLength {
				headings = append(headings, Heading{
					Level:    tag,
					Text:     text,
					Position: len(headings) + 1,
				})
			}
		})
	}
	return headings
}

// normalizeText collapses internal whitespace and trims the result.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ScrapeAll scrapes URLs in order with a short politeness delay
// between requests. The result slice is positional with the input.
func ScrapeAll(ctx context.Context, s Scraper, urls []string) []PageContent {
	results := make([]PageContent, 0, len(urls))
	for i, u := range urls {
		if i > 0 {
			select {
			case <-time.After(politenessDelay):
			case <-ctx.Done():
				for _, rest := range urls[i:] {
					results = append(results, PageContent{URL: rest, Error: ctx.Err().Error()})
				}
				return results
			}
		}
		page := s.Scrape(ctx, u)
		if !page.Success {
			fmt.Fprintf(os.Stderr, "Warning: scraping %s failed: %s\n", u, page.Error)
		}
		results = append(results, page)
	}
	return results
}

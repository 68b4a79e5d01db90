package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tunescope/enricher/config"
)

// Result is a single web search hit.
type Result struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"display_link,omitempty"`
}

// Response carries the results of one contact search.
type Response struct {
	Query        string    `json:"query"`
	Results      []Result  `json:"results"`
	TotalResults int64     `json:"total_results"`
	Source       string    `json:"source"`
	SearchedAt   time.Time `json:"searched_at"`
}

// GoogleClient wraps the Google Custom Search JSON API. Search is always
// a best-effort enhancement: transport and HTTP errors are absorbed and
// reported as an absent result, never propagated.
type GoogleClient struct {
	apiKey     string
	engineID   string
	baseURL    string
	maxResults int
	quota      *QuotaTracker
	httpClient *http.Client
	logger     *log.Logger
}

// NewGoogleClient creates a search adapter. Missing credentials are not
// an error; they just leave the adapter unavailable.
func NewGoogleClient(cfg config.SearchConfig, quota *QuotaTracker) *GoogleClient {
	c := &GoogleClient{
		apiKey:     cfg.APIKey,
		engineID:   cfg.EngineID,
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		quota:      quota,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
	if c.apiKey == "" || c.engineID == "" {
		c.logger.Printf("warn: search credentials not configured; search augmentation disabled")
	}
	return c
}

// IsAvailable reports whether credentials are configured and daily quota
// remains.
func (c *GoogleClient) IsAvailable() bool {
	return c.apiKey != "" && c.engineID != "" && c.quota.CanSearch()
}

// Quota exposes the adapter's quota tracker.
func (c *GoogleClient) Quota() *QuotaTracker {
	return c.quota
}

// SearchContact looks up a contact on the web, combining name, email,
// domain and optional extra context into one query. It returns nil when
// search is unavailable, quota is exhausted, or the call fails; quota is
// consumed only after a successful call.
func (c *GoogleClient) SearchContact(ctx context.Context, name, email, extra string) *Response {
	if c.apiKey == "" || c.engineID == "" {
		return nil
	}
	if !c.quota.CanSearch() {
		c.logger.Printf("daily search quota exhausted (%d used)", c.quota.GetUsage().Used)
		return nil
	}

	query := buildContactQuery(name, email, extra)

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		c.logger.Printf("warn: build search request: %v", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("warn: search request failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Printf("warn: search API status %d", resp.StatusCode)
		return nil
	}

	var out struct {
		Items []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Snippet     string `json:"snippet"`
			DisplayLink string `json:"displayLink"`
		} `json:"items"`
		SearchInformation struct {
			TotalResults string `json:"totalResults"`
		} `json:"searchInformation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Printf("warn: decode search response: %v", err)
		return nil
	}

	// Absent items means zero results, not an error.
	results := make([]Result, 0, len(out.Items))
	for _, item := range out.Items {
		results = append(results, Result{
			Title:       item.Title,
			Link:        item.Link,
			Snippet:     item.Snippet,
			DisplayLink: item.DisplayLink,
		})
	}
	total, _ := strconv.ParseInt(out.SearchInformation.TotalResults, 10, 64)

	c.quota.RecordSearch()

	return &Response{
		Query:        query,
		Results:      results,
		TotalResults: total,
		Source:       "google",
		SearchedAt:   time.Now(),
	}
}

// buildContactQuery combines the contact identity with optional context
// hints into a single query string.
func buildContactQuery(name, email, extra string) string {
	parts := []string{fmt.Sprintf("%q", name)}
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		parts = append(parts, email[at+1:])
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		parts = append(parts, extra)
	}
	parts = append(parts, "music submission contact")
	return strings.Join(parts, " ")
}

// FormatForEnrichment renders a search response as a numbered plain-text
// block for prompt injection.
func FormatForEnrichment(resp *Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return "No search results found."
	}
	var b strings.Builder
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "   URL: %s\n", r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Package websearch implements the web_search function: a DuckDuckGo
// query whose result pages are scraped and distilled into an answer by
// a cheap model.
package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cinematic-bot/cinematic/internal/httpkit"
)

const defaultEndpoint = "https://html.duckduckgo.com/html/"

// Result is one search hit.
type Result struct {
	Title string
	URL   string
}

// Searcher queries the DuckDuckGo HTML endpoint, which needs no API
// key and returns parseable markup.
type Searcher struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
	logger     *slog.Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithEndpoint overrides the search endpoint, for test servers.
func WithEndpoint(u string) SearcherOption {
	return func(s *Searcher) { s.endpoint = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) SearcherOption {
	return func(s *Searcher) { s.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher creates a Searcher returning up to maxResults hits.
func NewSearcher(maxResults int, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		endpoint:   defaultEndpoint,
		maxResults: maxResults,
	}
	for _, o := range opts {
		o(s)
	}
	if s.maxResults <= 0 {
		s.maxResults = 8
	}
	if s.httpClient == nil {
		s.httpClient = httpkit.NewClient()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Search runs one query and returns the result links in page order.
func (s *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	u := s.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpkit.DrainAndClose(resp.Body, 2048)
		return nil, fmt.Errorf("search returned %d", resp.StatusCode)
	}

	results, err := parseResults(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	return results, nil
}

// parseResults extracts result links from the DuckDuckGo HTML page.
// Results are anchors carrying the result__a class.
func parseResults(r io.Reader) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A && hasClass(n, "result__a") {
			if href := attr(n, "href"); href != "" {
				results = append(results, Result{
					Title: nodeText(n),
					URL:   resolveRedirect(href),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return strings.TrimSpace(b.String())
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links to the
// destination URL. Plain links pass through unchanged.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		return dest
	}
	return href
}

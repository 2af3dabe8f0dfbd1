// Package arr is a client for Radarr and Sonarr v3 APIs. Both services
// share the same API shape; a single Client handles either, switching
// on the service kind for the paths and payload fields that differ.
package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cinematic-bot/cinematic/internal/httpkit"
)

// Service selects which media manager a Client talks to.
type Service string

const (
	// Radarr manages movies.
	Radarr Service = "radarr"
	// Sonarr manages series.
	Sonarr Service = "sonarr"
)

// mediaPath is the API resource segment for the service's media type.
func (s Service) mediaPath() string {
	if s == Sonarr {
		return "series"
	}
	return "movie"
}

// Record is one untyped API object. Radarr and Sonarr records carry
// dozens of fields; callers read the handful they need and pass the
// rest through untouched on add/update round trips.
type Record = map[string]any

// Client talks to one Radarr or Sonarr instance.
type Client struct {
	service  Service
	baseURL  string
	apiKey   string
	authUser string
	authPass string

	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBasicAuth sets credentials for a reverse proxy in front of the
// service. The API key is always sent regardless.
func WithBasicAuth(user, pass string) Option {
	return func(c *Client) {
		c.authUser = user
		c.authPass = pass
	}
}

// NewClient creates a client for one service instance.
func NewClient(service Service, baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpkit.NewClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Service reports which media manager this client talks to.
func (c *Client) Service() Service { return c.service }

// do performs one API request. A non-nil out receives the decoded
// response body; write-style endpoints that return bodies we do not
// need pass nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		reqBody = bytes.NewReader(b)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authUser != "" {
		req.SetBasicAuth(c.authUser, c.authPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := httpkit.ReadErrorBody(resp.Body, 2048)
		return fmt.Errorf("%s %s %s returned %d: %s", c.service, method, path, resp.StatusCode, msg)
	}

	if out == nil {
		httpkit.DrainAndClose(resp.Body, 4096)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Lookup searches the service's upstream database by free-text term.
// Results include both media already on the server (id > 0) and media
// that is not.
func (c *Client) Lookup(ctx context.Context, term string) ([]Record, error) {
	path := fmt.Sprintf("/api/v3/%s/lookup?term=%s", c.service.mediaPath(), url.QueryEscape(term))
	var out []Record
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// All returns every media item on the server.
func (c *Client) All(ctx context.Context) ([]Record, error) {
	var out []Record
	if err := c.do(ctx, http.MethodGet, "/api/v3/"+c.service.mediaPath(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LookupByDBID fetches the upstream-database record for one item:
// tmdbId for movies, tvdbId for series. The two services expose this
// differently; Sonarr only supports a term search with a tvdb: prefix.
func (c *Client) LookupByDBID(ctx context.Context, dbID int64) (Record, error) {
	if c.service == Sonarr {
		results, err := c.Lookup(ctx, fmt.Sprintf("tvdb:%d", dbID))
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("sonarr lookup tvdb:%d returned no results", dbID)
		}
		return results[0], nil
	}

	var out Record
	path := fmt.Sprintf("/api/v3/movie/lookup/tmdb?tmdbId=%d", dbID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one server-side media item by its server id.
func (c *Client) Get(ctx context.Context, id int64) (Record, error) {
	var out Record
	path := fmt.Sprintf("/api/v3/%s/%d", c.service.mediaPath(), id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add puts a new media item on the server: the upstream record is
// fetched by database id, decorated with the quality profile, monitor
// and search flags, root folder, and tags, then posted.
func (c *Client) Add(ctx context.Context, dbID int64, qualityProfileID int, tags []int64) error {
	record, err := c.LookupByDBID(ctx, dbID)
	if err != nil {
		return fmt.Errorf("lookup before add: %w", err)
	}

	record["qualityProfileId"] = qualityProfileID
	record["monitored"] = true
	record["minimumAvailability"] = "announced"
	if len(tags) > 0 {
		record["tags"] = tags
	}
	if c.service == Sonarr {
		record["rootFolderPath"] = "/tv"
		record["languageProfileId"] = 1
		record["addOptions"] = map[string]any{"searchForMissingEpisodes": true}
	} else {
		record["rootFolderPath"] = "/movies"
		record["addOptions"] = map[string]any{"searchForMovie": true}
	}

	return c.do(ctx, http.MethodPost, "/api/v3/"+c.service.mediaPath(), record, nil)
}

// Update merges fields into the current server record and puts it
// back. The full record must round-trip; the API rejects partial
// bodies.
func (c *Client) Update(ctx context.Context, id int64, fields Record) error {
	record, err := c.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get before update: %w", err)
	}
	for k, v := range fields {
		record[k] = v
	}

	path := fmt.Sprintf("/api/v3/%s/%d", c.service.mediaPath(), id)
	return c.do(ctx, http.MethodPut, path, record, nil)
}

// Delete removes a media item and its files from the server.
func (c *Client) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/v3/%s/%d?deleteFiles=true", c.service.mediaPath(), id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Queue returns the current download queue. Both services page the
// queue endpoint and wrap results in a records envelope.
func (c *Client) Queue(ctx context.Context) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/queue?pageSize=100", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

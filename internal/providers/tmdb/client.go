package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"cinefinder/searchservice/internal/domain"
)

const (
	defaultBaseURL   = "https://api.themoviedb.org/3"
	defaultLanguage  = "es-ES"
	maxResponseBytes = 2 * 1024 * 1024
)

var (
	ErrAPIKeyMissing = errors.New("tmdb api key is not configured")
	ErrInvalidKind   = errors.New("unsupported media kind")
)

// APIError is returned for non-2xx upstream responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tmdb HTTP %d", e.Status)
	}
	return fmt.Sprintf("tmdb HTTP %d: %s", e.Status, e.Message)
}

type Endpoint string

const (
	EndpointSearch  Endpoint = "search"
	EndpointDetails Endpoint = "details"
	EndpointImages  Endpoint = "images"
	EndpointVideos  Endpoint = "videos"
	EndpointCredits Endpoint = "credits"
	EndpointReviews Endpoint = "reviews"
)

type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	logger   *slog.Logger

	statsMu sync.Mutex
	stats   map[Endpoint]*endpointStats
}

type Config struct {
	APIKey   string
	BaseURL  string
	Language string
	Client   *http.Client
	Logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	language := strings.TrimSpace(cfg.Language)
	if language == "" {
		language = defaultLanguage
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		logger:   logger.With(slog.String("component", "tmdb")),
		stats:    make(map[Endpoint]*endpointStats),
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Language() string {
	return c.language
}

// SearchMulti runs one multi-type search for the given page in the fixed locale.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (MultiSearchResponse, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"query":    {strings.TrimSpace(query)},
		"page":     {strconv.Itoa(page)},
		"language": {c.language},
	}
	var response MultiSearchResponse
	if err := c.get(ctx, EndpointSearch, "/search/multi", params, &response); err != nil {
		return MultiSearchResponse{}, err
	}
	return response, nil
}

func (c *Client) Details(ctx context.Context, kind domain.MediaKind, id int) (Details, error) {
	params := url.Values{"language": {c.language}}
	if kind == domain.MediaKindTV {
		// Series details do not carry imdb_id at the top level.
		params.Set("append_to_response", "external_ids")
	}
	var details Details
	if err := c.getItem(ctx, EndpointDetails, kind, id, "", params, &details); err != nil {
		return Details{}, err
	}
	return details, nil
}

func (c *Client) Images(ctx context.Context, kind domain.MediaKind, id int) (Images, error) {
	var images Images
	if err := c.getItem(ctx, EndpointImages, kind, id, "/images", url.Values{}, &images); err != nil {
		return Images{}, err
	}
	return images, nil
}

func (c *Client) Videos(ctx context.Context, kind domain.MediaKind, id int) (Videos, error) {
	var videos Videos
	if err := c.getItem(ctx, EndpointVideos, kind, id, "/videos", url.Values{"language": {c.language}}, &videos); err != nil {
		return Videos{}, err
	}
	return videos, nil
}

func (c *Client) Credits(ctx context.Context, kind domain.MediaKind, id int) (Credits, error) {
	var credits Credits
	if err := c.getItem(ctx, EndpointCredits, kind, id, "/credits", url.Values{"language": {c.language}}, &credits); err != nil {
		return Credits{}, err
	}
	return credits, nil
}

func (c *Client) Reviews(ctx context.Context, kind domain.MediaKind, id int) (Reviews, error) {
	var reviews Reviews
	if err := c.getItem(ctx, EndpointReviews, kind, id, "/reviews", url.Values{"language": {c.language}}, &reviews); err != nil {
		return Reviews{}, err
	}
	return reviews, nil
}

func (c *Client) getItem(ctx context.Context, endpoint Endpoint, kind domain.MediaKind, id int, suffix string, params url.Values, dest any) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	path := "/" + string(kind) + "/" + strconv.Itoa(id) + suffix
	return c.get(ctx, endpoint, path, params, dest)
}

func (c *Client) get(ctx context.Context, endpoint Endpoint, path string, params url.Values, dest any) error {
	if !c.Enabled() {
		return ErrAPIKeyMissing
	}
	params.Set("api_key", c.apiKey)

	startedAt := time.Now()
	err := c.do(ctx, c.baseURL+path+"?"+params.Encode(), dest)
	elapsed := time.Since(startedAt)
	c.recordResult(endpoint, err, elapsed, time.Now())

	if err != nil {
		c.logger.Warn("tmdb request failed",
			slog.String("endpoint", string(endpoint)),
			slog.String("path", path),
			slog.Int64("elapsedMs", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.logger.Debug("tmdb request completed",
		slog.String("endpoint", string(endpoint)),
		slog.String("path", path),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return nil
}

func (c *Client) do(ctx context.Context, reqURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return c.redact(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.redact(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{Status: resp.StatusCode}
		var payload ErrorResponse
		if json.Unmarshal(body, &payload) == nil && payload.StatusMessage != "" {
			apiErr.Message = payload.StatusMessage
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}

const redactedKey = "REDACTED"

// redact removes the api key from transport errors, which embed the full
// request URL in their message.
func (c *Client) redact(err error) error {
	if err == nil || c.apiKey == "" {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), redactedKey)
		urlErr.URL = strings.ReplaceAll(urlErr.URL, c.apiKey, redactedKey)
	}
	if message := err.Error(); strings.Contains(message, c.apiKey) {
		return errors.New(strings.ReplaceAll(message, c.apiKey, redactedKey))
	}
	return err
}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/metrics"
	"cinefinder/searchservice/internal/providers/tmdb"
)

var (
	ErrEmptyQuery    = errors.New("please enter a title")
	ErrNoMatches     = errors.New("no matches")
	ErrFilteredEmpty = errors.New("filtered to empty")
	ErrSearchFailed  = errors.New("search failed")
	ErrSuperseded    = errors.New("search superseded by a newer request")
	ErrNoActiveQuery = errors.New("no query has been entered")
)

// IsEmptyResult reports whether err is an informational empty outcome rather
// than a failure.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrNoMatches) || errors.Is(err, ErrFilteredEmpty)
}

// Searcher is the upstream multi-type search endpoint.
type Searcher interface {
	SearchMulti(ctx context.Context, query string, page int) (tmdb.MultiSearchResponse, error)
}

// Controller runs searches for one client and owns its committed query state.
// Requests may overlap; only the response to the newest request is committed.
type Controller struct {
	searcher Searcher
	logger   *slog.Logger

	mu       sync.Mutex
	seq      uint64
	selected domain.MediaFilter
	state    domain.SearchState
}

type ControllerOption func(*Controller)

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

func NewController(searcher Searcher, opts ...ControllerOption) *Controller {
	c := &Controller{
		searcher: searcher,
		logger:   slog.Default(),
		selected: domain.MediaFilterAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the last committed query, page and filter.
func (c *Controller) State() domain.SearchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Search runs query against the upstream API. An empty query filter falls back
// to the currently selected filter.
//
// Outcomes: ErrEmptyQuery without any network call, ErrNoMatches when the
// upstream returned nothing, ErrFilteredEmpty (with the page metadata still
// filled in) when nothing survived filtering, ErrSearchFailed on transport or
// decode failure, ErrSuperseded when a newer request was issued meanwhile.
func (c *Controller) Search(ctx context.Context, query domain.SearchQuery) (domain.PageResult, error) {
	c.mu.Lock()
	if query.Filter == "" {
		query.Filter = c.selected
	}
	query = query.Normalize()
	if query.Text == "" {
		c.mu.Unlock()
		metrics.SearchOutcomesTotal.WithLabelValues("validation").Inc()
		return domain.PageResult{}, ErrEmptyQuery
	}
	c.seq++
	token := c.seq
	c.selected = query.Filter
	c.mu.Unlock()

	return c.run(ctx, token, query)
}

// SetFilter changes the media filter. Without a prior query nothing is fetched
// and ErrNoActiveQuery is returned; otherwise the search re-runs at page 1.
func (c *Controller) SetFilter(ctx context.Context, filter domain.MediaFilter) (domain.PageResult, error) {
	filter = domain.NormalizeMediaFilter(string(filter))

	c.mu.Lock()
	c.selected = filter
	if !c.state.HasQuery() {
		c.mu.Unlock()
		return domain.PageResult{}, ErrNoActiveQuery
	}
	query := domain.SearchQuery{Text: c.state.Query, Page: 1, Filter: filter}
	c.seq++
	token := c.seq
	c.mu.Unlock()

	return c.run(ctx, token, query)
}

// GoToPage re-runs the current query at page with the selected filter, which
// may differ from the committed one when a filter change failed upstream.
func (c *Controller) GoToPage(ctx context.Context, page int) (domain.PageResult, error) {
	c.mu.Lock()
	if !c.state.HasQuery() {
		c.mu.Unlock()
		return domain.PageResult{}, ErrNoActiveQuery
	}
	query := domain.SearchQuery{Text: c.state.Query, Page: page, Filter: c.selected}.Normalize()
	c.seq++
	token := c.seq
	c.mu.Unlock()

	return c.run(ctx, token, query)
}

func (c *Controller) run(ctx context.Context, token uint64, query domain.SearchQuery) (domain.PageResult, error) {
	response, err := c.searcher.SearchMulti(ctx, query.Text, query.Page)
	if err != nil {
		if !c.isCurrent(token) {
			return domain.PageResult{}, c.superseded(query)
		}
		c.logger.Warn("search request failed",
			slog.String("query", query.Text),
			slog.Int("page", query.Page),
			slog.String("error", err.Error()),
		)
		metrics.SearchOutcomesTotal.WithLabelValues("error").Inc()
		return domain.PageResult{}, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}

	result, outcome := buildPage(query, response)
	if !c.commit(token, query, result.CurrentPage) {
		return domain.PageResult{}, c.superseded(query)
	}

	switch {
	case errors.Is(outcome, ErrNoMatches):
		metrics.SearchOutcomesTotal.WithLabelValues("no_matches").Inc()
	case errors.Is(outcome, ErrFilteredEmpty):
		metrics.SearchOutcomesTotal.WithLabelValues("filtered_empty").Inc()
	default:
		metrics.SearchOutcomesTotal.WithLabelValues("ok").Inc()
	}
	c.logger.Debug("search completed",
		slog.String("query", query.Text),
		slog.String("filter", string(query.Filter)),
		slog.Int("page", result.CurrentPage),
		slog.Int("totalPages", result.TotalPages),
		slog.Int("items", len(result.Items)),
	)
	return result, outcome
}

func (c *Controller) isCurrent(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token == c.seq
}

func (c *Controller) commit(token uint64, query domain.SearchQuery, page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.seq {
		return false
	}
	c.state = domain.SearchState{Query: query.Text, Page: page, Filter: query.Filter}
	return true
}

func (c *Controller) superseded(query domain.SearchQuery) error {
	metrics.SearchOutcomesTotal.WithLabelValues("superseded").Inc()
	metrics.StaleResponsesTotal.WithLabelValues("search").Inc()
	c.logger.Debug("discarding stale search response",
		slog.String("query", query.Text),
		slog.Int("page", query.Page),
	)
	return ErrSuperseded
}

func buildPage(query domain.SearchQuery, response tmdb.MultiSearchResponse) (domain.PageResult, error) {
	page := response.Page
	if page < 1 {
		page = query.Page
	}
	totalPages := max(response.TotalPages, 0)

	result := domain.PageResult{
		Query:       query.Text,
		Filter:      query.Filter,
		Items:       []domain.SearchResultItem{},
		CurrentPage: page,
		TotalPages:  totalPages,
	}
	if len(response.Results) == 0 {
		result.TotalPages = 0
		return result, ErrNoMatches
	}

	items := make([]domain.SearchResultItem, 0, len(response.Results))
	for _, raw := range response.Results {
		items = append(items, raw.Item())
	}
	items = completeItems(FilterItems(items, query.Filter))
	if len(items) == 0 {
		return result, ErrFilteredEmpty
	}
	result.Items = items
	return result, nil
}

package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"cinefinder/searchservice/internal/detail"
	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/providers/tmdb"
	"cinefinder/searchservice/internal/render"
	"cinefinder/searchservice/internal/session"
	"cinefinder/searchservice/internal/theme"
)

type fakeSearcher struct {
	mu        sync.Mutex
	response  tmdb.MultiSearchResponse
	err       error
	callCount int
	lastQuery string
	lastPage  int
}

func (f *fakeSearcher) SearchMulti(ctx context.Context, query string, page int) (tmdb.MultiSearchResponse, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	f.lastQuery = query
	f.lastPage = page
	if f.err != nil {
		return tmdb.MultiSearchResponse{}, f.err
	}
	response := f.response
	response.Page = page
	return response, nil
}

type fakeDetailLoader struct {
	model   domain.DetailViewModel
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeDetailLoader) Load(ctx context.Context, kind domain.MediaKind, id int) (domain.DetailViewModel, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return domain.DetailViewModel{}, f.err
	}
	model := f.model
	model.ID = id
	model.MediaKind = kind
	return model, nil
}

type fakeUpstream struct{}

func (fakeUpstream) Enabled() bool { return true }

func (fakeUpstream) Diagnostics() []tmdb.EndpointDiagnostics {
	return []tmdb.EndpointDiagnostics{{Endpoint: string(tmdb.EndpointSearch), TotalRequests: 3}}
}

func strPtr(value string) *string { return &value }

func batmanResponse() tmdb.MultiSearchResponse {
	return tmdb.MultiSearchResponse{
		Page:       1,
		TotalPages: 12,
		Results: []tmdb.MultiResult{
			{ID: 268, MediaType: "movie", Title: strPtr("Batman"), PosterPath: strPtr("/b.jpg")},
			{ID: 3894, MediaType: "person", Name: strPtr("Christian Bale")},
			{ID: 2098, MediaType: "tv", Name: strPtr("Batman: The Animated Series")},
			{ID: 364, MediaType: "movie", Title: strPtr("Batman Returns")},
		},
	}
}

func newTestServer(searcher *fakeSearcher, loader DetailLoader, options ...ServerOption) http.Handler {
	return NewServer(session.NewManager(searcher), loader, options...).Handler()
}

// client replays the session cookie the server issued.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, issued := range rec.Result().Cookies() {
		c.setCookie(issued)
	}
	return rec
}

func (c *client) setCookie(cookie *http.Cookie) {
	for i, existing := range c.cookies {
		if existing.Name == cookie.Name {
			c.cookies[i] = cookie
			return
		}
	}
	c.cookies = append(c.cookies, cookie)
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) searchPayload {
	t.Helper()
	var payload searchPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) detailPayload {
	t.Helper()
	var payload detailPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestSearchBlankQueryIsValidation(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodGet, "/api/search?q=%20%20", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload := decodeSearch(t, rec); payload.Status.Kind != StatusValidation {
		t.Fatalf("unexpected status kind: %s", payload.Status.Kind)
	}
	if searcher.callCount != 0 {
		t.Fatalf("blank query reached the upstream %d times", searcher.callCount)
	}
}

func TestSearchReturnsCardsAndPagination(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodGet, "/api/search?q=batman&filter=movie&page=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(c.cookies) == 0 || c.cookies[0].Name != sessionCookieName {
		t.Fatalf("expected a session cookie, got %#v", c.cookies)
	}

	payload := decodeSearch(t, rec)
	if payload.Status.Kind != StatusOK {
		t.Fatalf("unexpected status kind: %s", payload.Status.Kind)
	}
	if len(payload.Cards) != 2 {
		t.Fatalf("expected 2 movie cards, got %d", len(payload.Cards))
	}
	for _, card := range payload.Cards {
		if card.MediaKind != domain.MediaKindMovie {
			t.Fatalf("non-movie card rendered: %#v", card)
		}
	}
	if payload.Cards[1].PosterURL != render.DefaultPlaceholder {
		t.Fatalf("expected placeholder poster, got %q", payload.Cards[1].PosterURL)
	}
	if payload.Window == nil || len(payload.Window.Pages) != 7 {
		t.Fatalf("unexpected window: %#v", payload.Window)
	}
	if len(payload.Pagination) != 9 {
		t.Fatalf("expected prev + 7 pages + next, got %d buttons", len(payload.Pagination))
	}
	if payload.State != (domain.SearchState{Query: "batman", Page: 1, Filter: domain.MediaFilterMovie}) {
		t.Fatalf("unexpected state: %#v", payload.State)
	}
}

func TestSearchRejectsUnknownFilter(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodGet, "/api/search?q=batman&filter=person", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if searcher.callCount != 0 {
		t.Fatalf("unexpected upstream calls: %d", searcher.callCount)
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("dial tcp: connection refused")}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodGet, "/api/search?q=batman", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	payload := decodeSearch(t, rec)
	if payload.Status.Kind != StatusError {
		t.Fatalf("unexpected status kind: %s", payload.Status.Kind)
	}
	if strings.Contains(payload.Status.Message, "connection refused") {
		t.Fatalf("transport details leaked: %q", payload.Status.Message)
	}
}

func TestSearchNoMatchesIsEmpty(t *testing.T) {
	searcher := &fakeSearcher{response: tmdb.MultiSearchResponse{}}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodGet, "/api/search?q=qwxz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeSearch(t, rec)
	if payload.Status.Kind != StatusEmpty || len(payload.Cards) != 0 || len(payload.Pagination) != 0 {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSearchFilterWithoutQueryIsIdle(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	rec := c.do(http.MethodPost, "/api/search/filter?filter=tv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload := decodeSearch(t, rec); payload.Status.Kind != StatusIdle {
		t.Fatalf("unexpected status kind: %s", payload.Status.Kind)
	}
	if searcher.callCount != 0 {
		t.Fatalf("unexpected upstream calls: %d", searcher.callCount)
	}

	// The stored filter applies to the next search of the same session.
	payload := decodeSearch(t, c.do(http.MethodGet, "/api/search?q=batman", nil))
	if len(payload.Cards) != 1 || payload.Cards[0].MediaKind != domain.MediaKindTV {
		t.Fatalf("expected the tv card only, got %#v", payload.Cards)
	}
}

func TestSearchPageAndFilterFollowSessionState(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	handler := newTestServer(searcher, nil)
	c := &client{t: t, handler: handler}

	c.do(http.MethodGet, "/api/search?q=batman", nil)

	payload := decodeSearch(t, c.do(http.MethodPost, "/api/search/page?page=3", nil))
	if payload.State.Page != 3 || searcher.lastPage != 3 || searcher.lastQuery != "batman" {
		t.Fatalf("unexpected page state: %#v (upstream page %d)", payload.State, searcher.lastPage)
	}

	payload = decodeSearch(t, c.do(http.MethodPost, "/api/search/filter?filter=movie", nil))
	if payload.State.Page != 1 || payload.State.Filter != domain.MediaFilterMovie {
		t.Fatalf("filter change should restart at page 1: %#v", payload.State)
	}

	state := decodeSearch(t, c.do(http.MethodGet, "/api/search/state", nil))
	if state.Status.Kind != StatusOK || state.State.Query != "batman" {
		t.Fatalf("unexpected state payload: %#v", state)
	}

	// A different client has its own state.
	other := &client{t: t, handler: handler}
	rec := other.do(http.MethodPost, "/api/search/page?page=2", nil)
	if payload := decodeSearch(t, rec); payload.Status.Kind != StatusIdle {
		t.Fatalf("new session should be idle, got %s", payload.Status.Kind)
	}

	if rec := c.do(http.MethodPost, "/api/search/page?page=zero", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid page, got %d", rec.Code)
	}
}

func TestDetailRendersSections(t *testing.T) {
	loader := &fakeDetailLoader{model: domain.DetailViewModel{
		Overview:     domain.Overview{Title: "Batman"},
		Trailer:      &domain.Trailer{Key: "abc", Site: "YouTube"},
		ExternalLink: &domain.ExternalLink{IMDbID: "tt0096895"},
	}}
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, loader)}

	rec := c.do(http.MethodGet, "/api/detail?kind=movie&id=268", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeDetail(t, rec)
	if payload.Detail == nil || payload.Detail.Overview.Title != "Batman" {
		t.Fatalf("unexpected detail: %#v", payload.Detail)
	}
	if len(payload.Detail.Sections) != 2 ||
		payload.Detail.Sections[0].Kind != render.SectionTrailer ||
		payload.Detail.Sections[1].Kind != render.SectionLinks {
		t.Fatalf("unexpected sections: %#v", payload.Detail.Sections)
	}
}

func TestDetailValidation(t *testing.T) {
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, &fakeDetailLoader{})}

	for _, target := range []string{
		"/api/detail?kind=person&id=3894",
		"/api/detail?kind=movie&id=0",
		"/api/detail?kind=movie&id=abc",
		"/api/detail?kind=tv",
	} {
		rec := c.do(http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		if payload := decodeDetail(t, rec); payload.Status.Kind != StatusValidation {
			t.Fatalf("%s: unexpected status kind %s", target, payload.Status.Kind)
		}
	}
}

func TestDetailFailureReturnsNoPartialView(t *testing.T) {
	loader := &fakeDetailLoader{err: errors.Join(detail.ErrDetailsFailed, errors.New("fetch reviews: tmdb HTTP 500"))}
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, loader)}

	rec := c.do(http.MethodGet, "/api/detail?kind=movie&id=268", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	payload := decodeDetail(t, rec)
	if payload.Status.Kind != StatusError || payload.Detail != nil {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestDetailClosedWhileLoadingIsSuperseded(t *testing.T) {
	loader := &fakeDetailLoader{
		model:   domain.DetailViewModel{Overview: domain.Overview{Title: "Batman"}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, loader)}
	// Establish the session before the concurrent requests.
	c.do(http.MethodGet, "/api/search/state", nil)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/detail?kind=movie&id=268", nil)
		for _, cookie := range c.cookies {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		c.handler.ServeHTTP(rec, req)
		done <- rec
	}()
	<-loader.started

	if rec := c.do(http.MethodPost, "/api/detail/close", nil); rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", rec.Code)
	}
	close(loader.release)

	rec := <-done
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if payload := decodeDetail(t, rec); payload.Status.Kind != StatusSuperseded || payload.Detail != nil {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestThemeToggleRoundTrip(t *testing.T) {
	store := theme.NewMemoryStore()
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil, WithThemes(theme.NewService(store)))}
	hint := http.Header{theme.SystemHintHeader: {"dark"}}

	var payload themePayload
	rec := c.do(http.MethodGet, "/api/theme", hint)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Theme != theme.Dark {
		t.Fatalf("expected system preference dark, got %s", payload.Theme)
	}
	if rec.Header().Get("Accept-CH") != theme.SystemHintHeader {
		t.Fatalf("missing Accept-CH header")
	}

	rec = c.do(http.MethodPost, "/api/theme/toggle", hint)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Theme != theme.Light {
		t.Fatalf("expected light after toggle, got %s", payload.Theme)
	}

	rec = c.do(http.MethodGet, "/api/theme", hint)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Theme != theme.Light {
		t.Fatalf("stored theme should win over the hint, got %s", payload.Theme)
	}
}

func TestThemeSurvivesSessionLoss(t *testing.T) {
	store := theme.NewMemoryStore()
	themes := WithThemes(theme.NewService(store))
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil, themes)}

	var payload themePayload
	rec := c.do(http.MethodPost, "/api/theme/toggle", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Theme != theme.Dark {
		t.Fatalf("expected dark after toggle, got %s", payload.Theme)
	}

	// A fresh session manager forgets every session id, as after a restart.
	c.handler = newTestServer(&fakeSearcher{}, nil, themes)
	c.do(http.MethodGet, "/api/search/state", nil)

	rec = c.do(http.MethodGet, "/api/theme", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Theme != theme.Dark {
		t.Fatalf("expected stored dark theme after session loss, got %s", payload.Theme)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == themeCookieName {
			t.Fatalf("theme id must not be reissued: %s", cookie.Value)
		}
	}
}

func TestThemeCookieIsLongLived(t *testing.T) {
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil)}
	rec := c.do(http.MethodGet, "/api/theme", nil)

	var found *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == themeCookieName {
			found = cookie
		}
		if cookie.Name == sessionCookieName {
			t.Fatalf("theme lookups do not need a session")
		}
	}
	if found == nil {
		t.Fatalf("expected %s cookie", themeCookieName)
	}
	if found.MaxAge != themeCookieMaxAge || !found.HttpOnly {
		t.Fatalf("unexpected theme cookie: %#v", found)
	}
}

func TestSearchQueryLengthCountsCharacters(t *testing.T) {
	searcher := &fakeSearcher{response: batmanResponse()}
	c := &client{t: t, handler: newTestServer(searcher, nil)}

	accented := strings.Repeat("é", maxQueryLength)
	rec := c.do(http.MethodGet, "/api/search?q="+url.QueryEscape("  "+accented+"  "), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("500 characters should be accepted, got %d", rec.Code)
	}

	rec = c.do(http.MethodGet, "/api/search?q="+url.QueryEscape(accented+"e"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("501 characters should be rejected, got %d", rec.Code)
	}
	if searcher.callCount != 1 {
		t.Fatalf("expected one upstream call, got %d", searcher.callCount)
	}
}

func TestImageProxyRejectsArbitraryTargets(t *testing.T) {
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil)}

	for _, target := range []string{
		"/api/image?size=w342",
		"/api/image?size=w342&path=/../../etc/passwd",
		"/api/image?size=w342&path=/a/b.jpg",
		"/api/image?size=w342&path=http://169.254.169.254/latest",
		"/api/image?size=w9999&path=/abc.jpg",
	} {
		if rec := c.do(http.MethodGet, target, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestImageProxyFetchesFromImageHost(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var requestedPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		if r.URL.Path == "/t/p/w342/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer upstream.Close()

	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil, WithImageProxy(upstream.URL+"/t/p/", upstream.Client()))}

	rec := c.do(http.MethodGet, "/api/image?size=w342&path=/poster.jpg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if requestedPath != "/t/p/w342/poster.jpg" {
		t.Fatalf("unexpected upstream path: %s", requestedPath)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type: %s", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != string(png) {
		t.Fatalf("body was not forwarded")
	}

	if rec := c.do(http.MethodGet, "/api/image?size=w342&path=/missing.jpg", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUpstreamHealthEndpoint(t *testing.T) {
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil, WithUpstream(fakeUpstream{}))}

	rec := c.do(http.MethodGet, "/api/upstream/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Enabled bool                       `json:"enabled"`
		Items   []tmdb.EndpointDiagnostics `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Enabled || len(payload.Items) != 1 || payload.Items[0].TotalRequests != 3 {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := &client{t: t, handler: newTestServer(&fakeSearcher{}, nil)}
	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/search?q=batman"},
		{http.MethodGet, "/api/search/filter?filter=tv"},
		{http.MethodGet, "/api/theme/toggle"},
		{http.MethodDelete, "/api/detail?kind=movie&id=1"},
	} {
		if rec := c.do(tc.method, tc.target, nil); rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/api/search":         "/api/search",
		"/api/detail/close":   "/api/detail/close",
		"/api/search/unknown": "/other",
		"/metrics":            "/metrics",
		"/":                   "/other",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Fatalf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

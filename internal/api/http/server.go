package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"cinefinder/searchservice/internal/detail"
	"cinefinder/searchservice/internal/domain"
	"cinefinder/searchservice/internal/providers/tmdb"
	"cinefinder/searchservice/internal/render"
	"cinefinder/searchservice/internal/search"
	"cinefinder/searchservice/internal/session"
	"cinefinder/searchservice/internal/theme"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxQueryLength    = 500
	sessionCookieName = "cinefinder_session"
	themeCookieName   = "cinefinder_theme_id"
	themeCookieMaxAge = 400 * 24 * 60 * 60
)

// Status kinds carried by every API response.
const (
	StatusOK         = "ok"
	StatusValidation = "validation"
	StatusEmpty      = "empty"
	StatusError      = "error"
	StatusIdle       = "idle"
	StatusSuperseded = "superseded"
)

type DetailLoader interface {
	Load(ctx context.Context, kind domain.MediaKind, id int) (domain.DetailViewModel, error)
}

type UpstreamDiagnostics interface {
	Enabled() bool
	Diagnostics() []tmdb.EndpointDiagnostics
}

type Server struct {
	sessions  *session.Manager
	details   DetailLoader
	renderer  *render.Renderer
	themes    *theme.Service
	upstream  UpstreamDiagnostics
	images    *imageProxy
	logger    *slog.Logger
	rateRPS   float64
	rateBurst int
	secure    bool
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithRenderer(renderer *render.Renderer) ServerOption {
	return func(s *Server) {
		s.renderer = renderer
	}
}

func WithThemes(themes *theme.Service) ServerOption {
	return func(s *Server) {
		s.themes = themes
	}
}

func WithUpstream(upstream UpstreamDiagnostics) ServerOption {
	return func(s *Server) {
		s.upstream = upstream
	}
}

// WithImageProxy serves /api/image from imageBaseURL using client. A nil
// client gets the default proxy client.
func WithImageProxy(imageBaseURL string, client *http.Client) ServerOption {
	return func(s *Server) {
		s.images = newImageProxy(imageBaseURL, client)
	}
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) ServerOption {
	return func(s *Server) {
		s.secure = secure
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

func NewServer(sessions *session.Manager, details DetailLoader, options ...ServerOption) *Server {
	server := &Server{
		sessions:  sessions,
		details:   details,
		logger:    slog.Default(),
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.renderer == nil {
		server.renderer = render.NewRenderer("", "")
	}
	if server.themes == nil {
		server.themes = theme.NewService(theme.NewMemoryStore())
	}
	if server.images == nil {
		server.images = newImageProxy("", nil)
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/search/filter", s.handleSearchFilter)
	mux.HandleFunc("/api/search/page", s.handleSearchPage)
	mux.HandleFunc("/api/search/state", s.handleSearchState)
	mux.HandleFunc("/api/detail", s.handleDetail)
	mux.HandleFunc("/api/detail/close", s.handleDetailClose)
	mux.HandleFunc("/api/theme", s.handleTheme)
	mux.HandleFunc("/api/theme/toggle", s.handleThemeToggle)
	mux.HandleFunc("/api/image", s.handleImageProxy)
	mux.HandleFunc("/api/upstream/health", s.handleUpstreamHealth)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "cinefinder",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced)))
}

type statusPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

type searchPayload struct {
	Status     statusPayload      `json:"status"`
	State      domain.SearchState `json:"state"`
	Cards      []render.Card      `json:"cards"`
	Window     *domain.PageWindow `json:"window,omitempty"`
	Pagination []render.Button    `json:"pagination"`
}

type detailPayload struct {
	Status statusPayload      `json:"status"`
	Detail *render.DetailView `json:"detail,omitempty"`
}

type themePayload struct {
	Status statusPayload `json:"status"`
	Theme  theme.Theme   `json:"theme"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)

	query := r.URL.Query().Get("q")
	if utf8.RuneCountInString(strings.TrimSpace(query)) > maxQueryLength {
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "query too long (max 500 characters)")
		return
	}
	rawFilter := r.URL.Query().Get("filter")
	filter, ok := domain.ParseMediaFilter(rawFilter)
	if !ok {
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "unknown media filter")
		return
	}
	if strings.TrimSpace(rawFilter) == "" {
		// Keep the filter the client selected earlier.
		filter = ""
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "invalid page")
		return
	}

	result, err := sess.Search.Search(r.Context(), domain.SearchQuery{Text: query, Page: page, Filter: filter})
	s.writeSearchOutcome(w, sess, result, err)
}

func (s *Server) handleSearchFilter(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search/filter" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)

	filter, ok := domain.ParseMediaFilter(r.FormValue("filter"))
	if !ok {
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "unknown media filter")
		return
	}
	result, err := sess.Search.SetFilter(r.Context(), filter)
	s.writeSearchOutcome(w, sess, result, err)
}

func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search/page" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)

	page, err := strconv.Atoi(strings.TrimSpace(r.FormValue("page")))
	if err != nil || page <= 0 {
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "invalid page")
		return
	}
	result, err := sess.Search.GoToPage(r.Context(), page)
	s.writeSearchOutcome(w, sess, result, err)
}

func (s *Server) handleSearchState(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/search/state" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	kind := StatusOK
	if !sess.Search.State().HasQuery() {
		kind = StatusIdle
	}
	s.writeSearchStatus(w, sess, http.StatusOK, kind, "")
}

func (s *Server) writeSearchOutcome(w http.ResponseWriter, sess *session.Session, result domain.PageResult, err error) {
	switch {
	case err == nil:
		s.writeSearchPage(w, sess, statusPayload{Kind: StatusOK}, result)
	case errors.Is(err, search.ErrNoMatches):
		s.writeSearchPage(w, sess, statusPayload{Kind: StatusEmpty, Message: "No results found."}, result)
	case errors.Is(err, search.ErrFilteredEmpty):
		s.writeSearchPage(w, sess, statusPayload{Kind: StatusEmpty, Message: "No results match the selected type."}, result)
	case errors.Is(err, search.ErrEmptyQuery):
		s.writeSearchStatus(w, sess, http.StatusBadRequest, StatusValidation, "Please enter a title to search.")
	case errors.Is(err, search.ErrNoActiveQuery):
		s.writeSearchStatus(w, sess, http.StatusOK, StatusIdle, "")
	case errors.Is(err, search.ErrSuperseded):
		s.writeSearchStatus(w, sess, http.StatusConflict, StatusSuperseded, "a newer search replaced this one")
	case errors.Is(err, search.ErrSearchFailed):
		s.logger.Warn("search request failed",
			slog.String("session", sess.ID),
			slog.String("error", err.Error()),
		)
		s.writeSearchStatus(w, sess, http.StatusBadGateway, StatusError, "Search failed. Please try again.")
	default:
		s.logger.Error("unexpected search error", slog.String("error", err.Error()))
		s.writeSearchStatus(w, sess, http.StatusInternalServerError, StatusError, "internal server error")
	}
}

func (s *Server) writeSearchPage(w http.ResponseWriter, sess *session.Session, status statusPayload, result domain.PageResult) {
	payload := searchPayload{
		Status:     status,
		State:      sess.Search.State(),
		Cards:      s.renderer.Cards(result.Items),
		Pagination: []render.Button{},
	}
	if result.TotalPages > 0 {
		window := search.Window(result.CurrentPage, result.TotalPages, search.DefaultMaxButtons)
		payload.Window = &window
		payload.Pagination = s.renderer.Pagination(window)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeSearchStatus(w http.ResponseWriter, sess *session.Session, code int, kind, message string) {
	writeJSON(w, code, searchPayload{
		Status:     statusPayload{Kind: kind, Message: message},
		State:      sess.Search.State(),
		Cards:      []render.Card{},
		Pagination: []render.Button{},
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/detail" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.details == nil {
		writeJSON(w, http.StatusInternalServerError, detailPayload{Status: statusPayload{Kind: StatusError, Message: "detail service is not configured"}})
		return
	}
	sess := s.session(w, r)

	kind, ok := domain.ParseMediaKind(r.URL.Query().Get("kind"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, detailPayload{Status: statusPayload{Kind: StatusValidation, Message: "kind must be movie or tv"}})
		return
	}
	id, err := parsePositiveInt(r, "id", 0)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, detailPayload{Status: statusPayload{Kind: StatusValidation, Message: "invalid id"}})
		return
	}

	token := sess.Modal.Open()
	model, err := s.details.Load(r.Context(), kind, id)
	if err != nil {
		if !sess.Modal.IsCurrent(token) {
			writeJSON(w, http.StatusConflict, detailPayload{Status: statusPayload{Kind: StatusSuperseded, Message: "the detail view was closed or replaced"}})
			return
		}
		if errors.Is(err, detail.ErrInvalidItem) {
			writeJSON(w, http.StatusBadRequest, detailPayload{Status: statusPayload{Kind: StatusValidation, Message: err.Error()}})
			return
		}
		writeJSON(w, http.StatusBadGateway, detailPayload{Status: statusPayload{Kind: StatusError, Message: "Details could not be loaded."}})
		return
	}
	if !sess.Modal.Commit(token, model) {
		writeJSON(w, http.StatusConflict, detailPayload{Status: statusPayload{Kind: StatusSuperseded, Message: "the detail view was closed or replaced"}})
		return
	}

	view := s.renderer.Detail(model)
	writeJSON(w, http.StatusOK, detailPayload{Status: statusPayload{Kind: StatusOK}, Detail: &view})
}

func (s *Server) handleDetailClose(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/detail/close" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess := s.session(w, r)
	sess.Modal.Close()
	writeJSON(w, http.StatusOK, detailPayload{Status: statusPayload{Kind: StatusIdle}})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/theme" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Accept-CH", theme.SystemHintHeader)

	current, err := s.themes.Current(r.Context(), s.themeKey(w, r), r.Header.Get(theme.SystemHintHeader))
	if err != nil {
		s.logger.Warn("theme lookup failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, themePayload{Status: statusPayload{Kind: StatusOK}, Theme: current})
}

func (s *Server) handleThemeToggle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/theme/toggle" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	next, err := s.themes.Toggle(r.Context(), s.themeKey(w, r), r.Header.Get(theme.SystemHintHeader))
	if err != nil {
		s.logger.Warn("theme toggle failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, themePayload{Status: statusPayload{Kind: StatusError, Message: "theme could not be saved"}, Theme: next})
		return
	}
	writeJSON(w, http.StatusOK, themePayload{Status: statusPayload{Kind: StatusOK}, Theme: next})
}

func (s *Server) handleUpstreamHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/upstream/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.upstream == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false, "items": []tmdb.EndpointDiagnostics{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.upstream.Enabled(),
		"items":   s.upstream.Diagnostics(),
	})
}

// session resolves the caller's session from its cookie, issuing a new cookie
// when the session is new.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}
	sess, created := s.sessions.Acquire(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// themeKey returns the client's theme id. The id is independent of the
// session so the stored theme survives session expiry and restarts.
func (s *Server) themeKey(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(themeCookieName); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(cookie.Value)); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     themeCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   themeCookieMaxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

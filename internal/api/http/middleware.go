package apihttp

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"cinefinder/searchservice/internal/metrics"
)

// knownRoutes bounds the path label cardinality of the request metrics.
var knownRoutes = map[string]struct{}{
	"/health":              {},
	"/metrics":             {},
	"/api/search":          {},
	"/api/search/filter":   {},
	"/api/search/page":     {},
	"/api/search/state":    {},
	"/api/detail":          {},
	"/api/detail/close":    {},
	"/api/theme":           {},
	"/api/theme/toggle":    {},
	"/api/image":           {},
	"/api/upstream/health": {},
}

// quietRoutes are logged at debug level when they succeed.
var quietRoutes = map[string]struct{}{
	"/health":    {},
	"/api/image": {},
}

// unlimitedRoutes bypass the inbound rate limiter.
var unlimitedRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// statusRecorder remembers the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		logger.LogAttrs(r.Context(), requestLogLevel(r.URL.Path, rec.status), "http request",
			requestLogAttrs(r, rec, time.Since(startedAt))...)
	})
}

func requestLogAttrs(r *http.Request, rec *statusRecorder, elapsed time.Duration) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Int("bytes", rec.bytes),
		slog.Int64("durationMs", elapsed.Milliseconds()),
		slog.String("clientIP", remoteClient(r)),
	}
	if query := strings.TrimSpace(r.URL.RawQuery); query != "" {
		attrs = append(attrs, slog.String("query", clip(query, 180)))
	}
	if agent := strings.TrimSpace(r.UserAgent()); agent != "" {
		attrs = append(attrs, slog.String("userAgent", clip(agent, 120)))
	}
	return attrs
}

// requestLogLevel keeps superseded (409) responses at info: they are part of
// normal use when a client fires requests faster than the upstream answers.
func requestLogLevel(path string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	if status >= http.StatusBadRequest && status != http.StatusConflict {
		return slog.LevelWarn
	}
	if _, quiet := quietRoutes[path]; quiet {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			logger.Error("panic recovered",
				slog.Any("error", recovered),
				slog.String("method", r.Method),
				slog.String("route", normalizeRoute(r.URL.Path)),
				slog.String("clientIP", remoteClient(r)),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		startedAt := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(startedAt).Seconds())
	})
}

func normalizeRoute(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "/other"
}

// rateLimitMiddleware shares one token bucket across all API callers and
// answers 429 once it is empty.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, unlimited := unlimitedRoutes[r.URL.Path]; unlimited || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
	})
}

// remoteClient prefers the first proxy hop, then X-Real-IP, then the peer
// address.
func remoteClient(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// clip shortens value to at most limit runes, marking the cut with "...".
func clip(value string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

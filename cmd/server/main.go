package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "cinefinder/searchservice/internal/api/http"
	"cinefinder/searchservice/internal/app"
	"cinefinder/searchservice/internal/detail"
	"cinefinder/searchservice/internal/metrics"
	"cinefinder/searchservice/internal/providers/tmdb"
	"cinefinder/searchservice/internal/render"
	"cinefinder/searchservice/internal/session"
	"cinefinder/searchservice/internal/telemetry"
	"cinefinder/searchservice/internal/theme"
)

const serviceName = "cinefinder"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("tmdbBaseURL", cfg.TMDBBaseURL),
		slog.String("tmdbImageBaseURL", cfg.TMDBImageBaseURL),
		slog.String("language", cfg.TMDBLanguage),
		slog.Duration("tmdbTimeout", cfg.TMDBTimeout),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("sessionIdleTTL", cfg.SessionIdleTTL),
		slog.Int("sessionMax", cfg.SessionMax),
	)

	tmdbClient := tmdb.NewClient(tmdb.Config{
		APIKey:   cfg.TMDBAPIKey,
		BaseURL:  cfg.TMDBBaseURL,
		Language: cfg.TMDBLanguage,
		Client:   &http.Client{Timeout: cfg.TMDBTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Logger:   logger,
	})
	if !tmdbClient.Enabled() {
		logger.Warn("tmdb api key not configured, searches and details will fail")
	}

	sessions := session.NewManager(tmdbClient,
		session.WithLogger(logger),
		session.WithIdleTTL(cfg.SessionIdleTTL),
		session.WithMaxEntries(cfg.SessionMax),
	)
	aggregator := detail.NewAggregator(tmdbClient, detail.WithLogger(logger))

	handler := apihttp.NewServer(sessions, aggregator,
		apihttp.WithLogger(logger),
		apihttp.WithRenderer(render.NewRenderer(cfg.TMDBImageBaseURL, render.DefaultPlaceholder)),
		apihttp.WithThemes(theme.NewService(buildThemeStore(cfg, logger))),
		apihttp.WithUpstream(tmdbClient),
		apihttp.WithImageProxy(cfg.TMDBImageBaseURL, nil),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		apihttp.WithSecureCookies(cfg.CookieSecure),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Detail loads wait on five upstream calls bounded by the TMDB timeout.
		WriteTimeout: cfg.TMDBTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sessions.StartBackground(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("cinefinder service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("language", tmdbClient.Language()),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("cinefinder service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildThemeStore prefers Redis and falls back to process memory when Redis is
// not configured or not reachable.
func buildThemeStore(cfg app.Config, logger *slog.Logger) theme.Store {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return theme.NewMemoryStore()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, keeping themes in memory", slog.String("error", err.Error()))
		return theme.NewMemoryStore()
	}
	store := theme.NewRedisStore(redis.NewClient(redisOpts))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis not reachable, keeping themes in memory", slog.String("error", err.Error()))
		return theme.NewMemoryStore()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return store
}

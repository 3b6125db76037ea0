package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const defaultLanguage = "es-ES"

type Config struct {
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBImageBaseURL string
	TMDBLanguage     string
	TMDBTimeout      time.Duration
	RedisURL         string
	SessionIdleTTL   time.Duration
	SessionMax       int
	CookieSecure     bool
	RateLimitRPS     float64
	RateLimitBurst   int
	OTLPEndpoint     string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8090"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		TMDBAPIKey:       strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p"),
		TMDBLanguage:     canonicalLanguage(getEnv("TMDB_LANGUAGE", defaultLanguage)),
		TMDBTimeout:      time.Duration(getEnvInt("TMDB_TIMEOUT_SECONDS", 10)) * time.Second,
		RedisURL:         getEnv("REDIS_URL", ""),
		SessionIdleTTL:   time.Duration(getEnvInt("SESSION_IDLE_TTL_MINUTES", 30)) * time.Minute,
		SessionMax:       getEnvInt("SESSION_MAX_ENTRIES", 1000),
		CookieSecure:     getEnvBool("SESSION_COOKIE_SECURE", false),
		RateLimitRPS:     float64(getEnvInt("RATE_LIMIT_RPS", 50)),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 100),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// canonicalLanguage normalizes a BCP 47 tag ("es_es", "ES-es") to the form the
// metadata API expects ("es-ES"). Unparseable tags fall back to the default.
func canonicalLanguage(raw string) string {
	tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-"))
	if err != nil || tag == language.Und {
		return defaultLanguage
	}
	base, _ := tag.Base()
	region, confidence := tag.Region()
	if confidence != language.Exact {
		return base.String()
	}
	return base.String() + "-" + region.String()
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

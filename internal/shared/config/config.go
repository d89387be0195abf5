package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	DatabaseURL string
	RedisURL    string

	YouTubeAPIKey   string
	ProviderTimeout time.Duration
	ProviderQPS     float64

	QuotaDailyLimit int

	CollectorConcurrency int
	MaxCandidates        int
	RecentVideosPerRef   int

	OutlierScale      float64
	EngagementCeiling float64
	BrandKeywords     []string
	ChannelVideoFloor int
	ChannelStaleAfter time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	apiKey := os.Getenv("YOUTUBE_API_KEY")

	if env == "production" && apiKey == "" {
		log.Printf("YOUTUBE_API_KEY is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		YouTubeAPIKey:   apiKey,
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		ProviderQPS:     getEnvFloat("PROVIDER_QPS", 4),

		QuotaDailyLimit: getEnvInt("QUOTA_DAILY_LIMIT", 10000),

		CollectorConcurrency: getEnvInt("COLLECTOR_CONCURRENCY", 5),
		MaxCandidates:        getEnvInt("MAX_CANDIDATES", 50),
		RecentVideosPerRef:   getEnvInt("RECENT_VIDEOS_PER_REF", 15),

		OutlierScale:      getEnvFloat("OUTLIER_SCALE", 10),
		EngagementCeiling: getEnvFloat("ENGAGEMENT_CEILING", 0.08),
		BrandKeywords:     splitAndTrim(getEnv("BRAND_KEYWORDS", "family,kids,gaming,minecraft,roblox,fun,challenge,tutorial")),
		ChannelVideoFloor: getEnvInt("CHANNEL_VIDEO_FLOOR", 10),
		ChannelStaleAfter: getEnvDuration("CHANNEL_STALE_AFTER", 2160*time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int %q, using default %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float %q, using default %v", key, raw, def)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration %q, using default %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

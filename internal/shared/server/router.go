package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"outlier-backend/internal/analysis"
	"outlier-backend/internal/gateway"
	"outlier-backend/internal/platform"
	"outlier-backend/internal/platform/youtube"
	"outlier-backend/internal/quota"
	"outlier-backend/internal/shared/config"
	"outlier-backend/internal/shared/metrics"
	"outlier-backend/internal/shared/server/middleware"
	"outlier-backend/internal/shared/server/respond"
	"outlier-backend/internal/shared/storage/db"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
// Missing infrastructure degrades rather than aborts: no database falls back
// to in-memory repos, no Redis to in-process stores.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), dbConn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				dbConn = nil
			}
		}
		sqlDB = dbConn
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("invalid REDIS_URL, falling back to memory: %v", err)
		} else {
			rdb = redis.NewClient(opts)
		}
	}

	var ledger *quota.Ledger
	switch {
	case rdb != nil:
		ledger = quota.NewLedgerWithStore(quota.NewRedisStore(rdb), cfg.QuotaDailyLimit)
	case sqlDB != nil:
		ledger = quota.NewLedgerWithStore(quota.NewPGStore(sqlDB), cfg.QuotaDailyLimit)
	default:
		ledger = quota.NewLedger(cfg.QuotaDailyLimit)
	}

	var provider platform.Client
	if client, err := youtube.NewClient(cfg.YouTubeAPIKey, cfg.ProviderTimeout, cfg.ProviderQPS); err != nil {
		log.Printf("provider unavailable, analyses will fail until configured: %v", err)
	} else {
		provider = client
	}

	var cache gateway.CacheStore
	if rdb != nil {
		cache = gateway.NewRedisCache(rdb)
	} else {
		cache = gateway.NewMemoryCache()
	}
	gw := gateway.New(provider, ledger, cache)

	var analysisRepo analysis.Repo
	if sqlDB != nil {
		analysisRepo = &analysis.PGRepo{DB: sqlDB}
	} else {
		analysisRepo = analysis.NewMemoryRepo()
	}
	analysisSvc := analysis.NewService(
		analysisRepo,
		analysis.NewHub(),
		analysis.NewExclusionBuilder(gw, cfg.RecentVideosPerRef),
		analysis.NewDiscoverer(gw, cfg.ChannelVideoFloor, cfg.ChannelStaleAfter, cfg.MaxCandidates),
		analysis.NewCollector(gw, 50),
		analysis.NewScorer(cfg.OutlierScale, cfg.BrandKeywords, cfg.EngagementCeiling),
		cfg.CollectorConcurrency,
	)
	analysisHandler := analysis.NewHandler(analysisSvc)
	quotaHandler := quota.NewHandler(ledger)

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"START":   {Rate: 0.5, Burst: 3},
			"DEFAULT": {Rate: 10, Burst: 20},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/analyses" {
				return "START"
			}
			return "DEFAULT"
		},
	}))
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	analysisHandler.RegisterRoutes(api)
	quotaHandler.RegisterRoutes(api)
	r.GET("/metrics", metrics.Handler())

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

// Command searchd wires the Arabic legal semantic search core's components
// together behind an HTTP surface.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/legatoo/legal-semantic-search/internal/config"
	"github.com/legatoo/legal-semantic-search/internal/embedding"
	"github.com/legatoo/legal-semantic-search/internal/events"
	"github.com/legatoo/legal-semantic-search/internal/maintenance"
	// internal/metrics registers its Prometheus collectors via init(); the
	// /metrics route below exposes them through the default registry.
	_ "github.com/legatoo/legal-semantic-search/internal/metrics"
	"github.com/legatoo/legal-semantic-search/internal/search"
	"github.com/legatoo/legal-semantic-search/internal/storage/postgres"
	"github.com/legatoo/legal-semantic-search/internal/tracing"
	"github.com/legatoo/legal-semantic-search/internal/vectorindex"
)

func main() {
	log.Println("🚀 Starting Arabic Legal Semantic Search Core")

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, "legal-semantic-search")
	if err != nil {
		logger.Warn("tracing disabled: failed to initialize exporter", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(ctx)

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}
	defer srv.close()

	router := setupRoutes(srv)

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// server holds every wired component, constructed once in newServer and
// passed down to handlers. No package-level singletons.
type server struct {
	cfg         config.Config
	log         *zap.Logger
	store       *postgres.Store
	redisClient *redis.Client
	publisher   *events.Publisher
	embedder    *embedding.Service
	index       *vectorindex.Index
	search      *search.Service
	maintenance *maintenance.Service
}

func newServer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server, error) {
	store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid redis url, running without redis L2 cache", zap.Error(err))
		} else {
			redisClient = redis.NewClient(opt)
			if _, err := redisClient.Ping(ctx).Result(); err != nil {
				logger.Warn("redis unreachable, running without redis L2 cache", zap.Error(err))
				redisClient = nil
			}
		}
	}

	publisher, err := events.Dial(cfg.AMQPURL, logger)
	if err != nil {
		logger.Warn("amqp unreachable, maintenance events disabled", zap.Error(err))
		publisher = nil
	}

	embedCfg := embedding.Config{
		ModelName:       cfg.EmbeddingModel,
		Device:          cfg.Device,
		BatchSize:       cfg.BatchSize,
		MaxSeqTokens:    cfg.MaxSeqTokens,
		CacheMaxEntries: cfg.EmbeddingCacheSize,
		NoMLMode:        cfg.NoMLMode,
		HashDimension:   cfg.EmbeddingDimension,
	}
	var redisCache embedding.RedisCache
	if redisClient != nil {
		redisCache = redisAdapter{redisClient}
	}
	embedder := embedding.New(embedCfg, redisCache, logger)
	if err := embedder.Initialize(ctx); err != nil {
		logger.Warn("embedding service initialization reported an error, continuing degraded", zap.Error(err))
	}

	index := vectorindex.New()

	searchSvc := search.New(search.Config{
		VerifiedBoost:  float32(cfg.VerifiedBoost),
		RecencyBoost:   float32(cfg.RecencyBoost),
		RecencyDays:    cfg.RecencyDays,
		QueryCacheSize: cfg.QueryCacheSize,
		HybridAlpha:    float32(cfg.HybridAlpha),
		UseVectorIndex: cfg.UseVectorIndex,
	}, embedder, index, store, logger)

	maintSvc := maintenance.New(store, embedder, index, publisher, logger)
	if err := maintSvc.RebuildIndex(ctx); err != nil {
		logger.Warn("initial index rebuild failed, starting with an empty index", zap.Error(err))
	}

	return &server{
		cfg:         cfg,
		log:         logger,
		store:       store,
		redisClient: redisClient,
		publisher:   publisher,
		embedder:    embedder,
		index:       index,
		search:      searchSvc,
		maintenance: maintSvc,
	}, nil
}

func (s *server) close() {
	s.publisher.Close()
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	s.store.Close()
}

// redisAdapter narrows *redis.Client to the embedding.RedisCache interface.
type redisAdapter struct{ client *redis.Client }

func (r redisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (r redisAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func setupRoutes(s *server) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/search/similar-laws", s.handleSearchLaws)
	router.POST("/search/similar-cases", s.handleSearchCases)
	router.POST("/search/hybrid", s.handleSearchHybrid)

	router.POST("/embeddings/documents/:parent_id/generate", s.handleGenerateForDocument)
	router.POST("/embeddings/chunks/batch-generate", s.handleBatchGenerateChunks)
	router.GET("/embeddings/documents/:parent_id/status", s.handleDocumentStatus)
	router.GET("/embeddings/status/global", s.handleGlobalStatus)

	return router
}

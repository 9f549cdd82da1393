package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/n0rvyn/cross-mind-consensus/internal/analytics"
	"github.com/n0rvyn/cross-mind-consensus/internal/cache"
	"github.com/n0rvyn/cross-mind-consensus/internal/config"
	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
	"github.com/n0rvyn/cross-mind-consensus/internal/embedding"
	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
	"github.com/n0rvyn/cross-mind-consensus/internal/modelconfig"
	"github.com/n0rvyn/cross-mind-consensus/internal/ratelimit"
	"github.com/n0rvyn/cross-mind-consensus/internal/server"
)

// run wires every component and blocks serving HTTP until the process
// receives SIGINT/SIGTERM, mirroring cmd/orchestrator/main.go's thin-main,
// thick-Run() split.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	models, err := modelconfig.NewStore(cfg.ModelDescriptorPath)
	if err != nil {
		return err
	}

	registry := buildRegistry(models)

	var resultCache cache.Cache
	var limiter ratelimit.Limiter
	if cfg.CacheBackendURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.CacheBackendURL)
		if err != nil {
			return err
		}
		resultCache = redisCache

		opts, err := redis.ParseURL(cfg.CacheBackendURL)
		if err != nil {
			return err
		}
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(opts), ratelimit.NewMemoryLimiter())
	} else {
		resultCache = cache.NewMemoryCache()
		limiter = ratelimit.NewMemoryLimiter()
	}

	embedder := buildEmbedder(resultCache)

	analyticsStore, err := buildAnalyticsStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	sink, err := analytics.NewSink(analyticsStore, 1000, 4, "analytics-fallback.jsonl")
	if err != nil {
		return err
	}

	engine := consensus.NewEngine(registry, embedder, resultCache, sink)
	engine.LowConsensusThreshold = cfg.LowConsensusThreshold
	engine.RequestTimeout = cfg.RequestTimeout
	engine.CacheTTL = cfg.CacheTTL
	engine.CostPer1K = costTable(models)

	gate := ratelimit.NewGate(cfg.BackendAPIKeys, limiter)

	srv := server.NewServer(engine, models, registry, analyticsStore, gate, cfg.AllowedOrigins, cfg.MaxInflightRequests)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("consensusd: listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("consensusd: received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("consensusd: http shutdown error: %v", err)
	}
	if err := sink.Shutdown(shutdownCtx); err != nil {
		log.Printf("consensusd: analytics sink shutdown error: %v", err)
	}
	return nil
}

// buildRegistry turns every enabled descriptor into an llm.Config the
// registry resolves lazily on first use.
func buildRegistry(models *modelconfig.Store) *llm.Registry {
	snapshot := models.Snapshot()
	configs := make(map[string]llm.Config)
	for _, id := range snapshot.Enabled() {
		d, _ := snapshot.Descriptor(id)
		configs[id] = d.ToProviderConfig()
	}
	return llm.NewRegistry(configs)
}

// costTable projects CostPer1KTokens out of the descriptor set, the shape
// Engine.CostPer1K expects for §3's cost_estimate.
func costTable(models *modelconfig.Store) map[string]float64 {
	out := make(map[string]float64)
	for id, d := range models.Snapshot().All() {
		out[id] = d.CostPer1KTokens
	}
	return out
}

// buildEmbedder wraps an embedder in the result cache so repeated text is
// only embedded once per §2's "results are cached ... with TTL 24 h." The
// inner embedder is OpenAI-compatible when OPENAI_API_KEY is set, and the
// local hash-based fallback otherwise.
func buildEmbedder(c cache.Cache) embedding.Embedder {
	var inner embedding.Embedder = embedding.LocalEmbedder{}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		inner = embedding.NewOpenAIEmbedder(key, os.Getenv("OPENAI_EMBEDDING_BASE_URL"))
	}
	return embedding.NewCachedEmbedder(inner, c)
}

// buildAnalyticsStore opens the Postgres connection lib/pq registers via its
// driver blank-import; an empty DATABASE_URL is valid and analytics is then
// best-effort only within the sink's own retry/fallback path.
func buildAnalyticsStore(databaseURL string) (analytics.Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		log.Printf("consensusd: analytics database unreachable at startup: %v", err)
	}
	return analytics.NewPostgresStore(db), nil
}

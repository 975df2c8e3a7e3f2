package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aramb-dev/agentkit/internal/cache"
	"github.com/aramb-dev/agentkit/internal/chunker"
	"github.com/aramb-dev/agentkit/internal/config"
	"github.com/aramb-dev/agentkit/internal/domain"
	logpkg "github.com/aramb-dev/agentkit/internal/logger"
	"github.com/aramb-dev/agentkit/internal/metrics"
	"github.com/aramb-dev/agentkit/internal/store"
	memstore "github.com/aramb-dev/agentkit/internal/store/memory"
	redisstore "github.com/aramb-dev/agentkit/internal/store/redis"
	"github.com/aramb-dev/agentkit/internal/transport/httpapi"
	openaiEmb "github.com/aramb-dev/agentkit/internal/transport/openai"
	"github.com/aramb-dev/agentkit/internal/transport/tavily"
	hybriduc "github.com/aramb-dev/agentkit/internal/usecase/hybrid"
	ingestuc "github.com/aramb-dev/agentkit/internal/usecase/ingest"
	retrieveuc "github.com/aramb-dev/agentkit/internal/usecase/retrieve"
	"github.com/aramb-dev/agentkit/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting agentkit retrieval server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	metrics.Register()

	// Vector store — in-process by default, Redis when configured.
	var (
		vectors store.Store
		checks  []httpapi.NamedCheck
	)
	switch cfg.Store.Driver {
	case "memory", "":
		vectors = memstore.NewStore()
	case "redis":
		rs, err := redisstore.NewStore(redisstore.Config{
			Addrs:     cfg.Store.Addrs,
			Password:  cfg.Store.Password,
			KeyPrefix: cfg.Store.KeyPrefix,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer rs.Close()

		timeout := time.Duration(cfg.Store.ReadinessTimeout) * time.Second
		if err := rs.WaitForReady(context.Background(), timeout); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Store.Addrs))

		vectors = rs
		checks = append(checks, httpapi.NamedCheck{Name: "redis", Checker: pingChecker{rs}})
	default:
		logger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}

	embedderFor := func(model string) domain.Embedder {
		var e domain.Embedder = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      model,
			Dimensions: cfg.Embedding.Dimensions,
			BatchSize:  cfg.Embedding.BatchSize,
			Logger:     logger,
		})
		if cfg.Embedding.Instruction != "" {
			e = domain.NewInstructionEmbedder(e, cfg.Embedding.Instruction)
		}
		return e
	}
	embedder := embedderFor(cfg.Embedding.Model)
	checks = append(checks, httpapi.NamedCheck{
		Name:    "embedder",
		Checker: newEmbeddingHealthChecker(embedder),
	})
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("instruction", cfg.Embedding.Instruction != ""),
	)

	var web domain.WebSearcher
	if cfg.WebSearch.APIKey != "" {
		web = tavily.NewClient(&tavily.Config{
			APIKey:     cfg.WebSearch.APIKey,
			BaseURL:    cfg.WebSearch.BaseURL,
			MaxResults: cfg.WebSearch.MaxResults,
			Timeout:    time.Duration(cfg.WebSearch.TimeoutSec) * time.Second,
			Logger:     logger,
		})
		logger.Info("Web search enabled")
	} else {
		web = tavily.Disabled{}
		logger.Info("Web search disabled: no API key configured")
	}

	queryCache := cache.New(cfg.Cache.Capacity, cfg.CacheEnabled(), metrics.CacheLookupsTotal)

	chunking := chunker.Config{Size: cfg.Chunking.ChunkSize, Overlap: cfg.Chunking.Overlap}
	ingestSvc := ingestuc.New(vectors, embedder, queryCache, chunking, logger)
	retrieveSvc := retrieveuc.New(vectors, embedder, queryCache,
		cfg.Retrieval.DefaultK,
		time.Duration(cfg.Retrieval.QueryTimeoutSec)*time.Second,
		logger)
	hybridSvc := hybriduc.New(retrieveSvc, web,
		time.Duration(cfg.WebSearch.TimeoutSec)*time.Second,
		logger)

	server := httpapi.NewServer(ingestSvc, retrieveSvc, hybridSvc, embedderFor, checks, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// embeddingHealthChecker adapts a domain.Embedder to the health check
// contract. Embedders without a health probe report healthy.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// pingChecker adapts the redis store's Ping to the health check contract.
type pingChecker struct {
	store *redisstore.Store
}

func (p pingChecker) HealthCheck(ctx context.Context) error {
	return p.store.Ping(ctx)
}

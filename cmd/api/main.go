// Command api runs the tenant-facing HTTP surface: document ingestion
// submission, retrieval, progress streaming, and graph browsing. Worker
// control lives in cmd/worker, which owns the ingest.Supervisor these
// requests enqueue work for.
//
// Grounded on the pack's cmd/api graceful-shutdown shape: dial
// dependencies up front, build a *http.Server with explicit timeouts, run
// it in a goroutine, and shut down on SIGINT/SIGTERM via
// signal.NotifyContext.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ragservice/internal/config"
	"ragservice/internal/embedder"
	"ragservice/internal/httpapi"
	"ragservice/internal/obs"
	"ragservice/internal/objectstore"
	"ragservice/internal/progress"
	"ragservice/internal/rag/reranker"
	"ragservice/internal/rag/retrieve"
	"ragservice/internal/store/graph"
	"ragservice/internal/store/meta"
	"ragservice/internal/store/queue"
	"ragservice/internal/store/vector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogLevel, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metaStore, err := meta.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect metastore")
	}
	defer metaStore.Close()

	vectorStore, err := vector.New(ctx, cfg.QdrantDSN, cfg.WeaviateCollection, cfg.VectorDimensions, "cosine")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect vector store")
	}
	defer vectorStore.Close()

	var graphStore graph.Store = graph.NoopStore{}
	if cfg.GraphEnabled {
		neo, err := graph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("connect graph store, falling back to noop")
		} else {
			graphStore = neo
			defer neo.Close(ctx)
		}
	}

	queueStore, err := queue.New(ctx, cfg.RedisAddr, cfg.RedisQueue, cfg.RedisProgressChan)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect queue")
	}
	defer queueStore.Close()

	objectStore, err := objectstore.NewLocalObjectStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("open object store")
	}

	embedClient := embedder.New(embedder.Config{
		BaseURL: cfg.EmbeddingsBaseURL, Model: cfg.EmbeddingsModel,
		APIKey: cfg.EmbeddingsAPIKey, APIHeader: "Authorization",
	})

	var rerankerImpl reranker.Reranker = reranker.NoopReranker{}
	if cfg.RerankerBaseURL != "" {
		rerankerImpl = reranker.NewHTTPReranker(cfg.RerankerBaseURL, 10*time.Second)
	}

	retrievePipeline := &retrieve.Pipeline{
		Embedder: embedClient,
		Vector:   vectorStore,
		Reranker: rerankerImpl,
		Graph:    graphStore,
	}

	broadcaster := progress.NewBroadcaster()
	progressEvents, closeSub := queueStore.Subscribe(ctx)
	defer closeSub()
	go broadcaster.Run(ctx, progressEvents)

	apiServer := httpapi.NewServer(httpapi.Deps{
		Meta:           metaStore,
		Queue:          queueStore,
		Objects:        objectStore,
		Retrieve:       retrievePipeline,
		Graph:          graphStore,
		Broadcaster:    broadcaster,
		TenantsByToken: cfg.TenantsByToken,
		DataDir:        cfg.DataDir,
		Logger:         logger,
		HealthCheckers: []httpapi.HealthChecker{
			httpapi.NewDepChecker("postgres", metaStore),
			httpapi.NewDepChecker("qdrant", vectorStore),
			httpapi.NewDepChecker("redis", queueStore),
			httpapi.NewDepChecker("neo4j", graphStore),
			httpapi.NewFuncChecker("embeddings", embedClient.CheckReachability),
		},
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiServer,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams hold the connection open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("api server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server exited with error")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// Command worker runs the asynchronous ingestion supervisor and the admin
// HTTP surface that controls it (start/stop, concurrency, tenant/global
// reset, status page). The admin surface is mounted here rather than on
// cmd/api because the Supervisor it controls is an in-process object —
// see DESIGN.md for the reasoning.
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
	"ragservice/internal/llmclient"
	"ragservice/internal/obs"
	"ragservice/internal/objectstore"
	"ragservice/internal/rag/chunker"
	"ragservice/internal/rag/entityextract"
	"ragservice/internal/rag/ingest"
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
	logger := obs.NewLogger(cfg.LogLevel, "worker")

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

	llmClient := llmclient.New(llmclient.Config{BaseURL: cfg.LLMBaseURL, Model: cfg.LLMModel, APIKey: cfg.LLMAPIKey})
	chunkerImpl, err := chunker.New(llmClient, cfg.ChunkerWindowTokens, cfg.ChunkerOverlapTokens)
	if err != nil {
		logger.Fatal().Err(err).Msg("build chunker")
	}
	entityExtractor := entityextract.New(llmClient)

	supervisor := ingest.NewSupervisor(ingest.Deps{
		Queue:    queueStore,
		Meta:     metaStore,
		Vector:   vectorStore,
		Graph:    graphStore,
		Objects:  objectStore,
		Embedder: embedClient,
		Chunker:  chunkerImpl,
		Entities: entityExtractor,
		Logger:   logger,
		Metrics:  obs.NewOtelMetrics(),
	}, cfg.WorkerConcurrency)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		supervisor.Start(workerCtx)
		close(runDone)
	}()

	adminServer := httpapi.NewAdminServer(httpapi.AdminDeps{
		Supervisor: supervisor,
		Token:      cfg.AdminToken,
		Logger:     logger,
		Start: func() {
			cancelWorker() // end the prior Start loop so it cannot keep running beside the new one once Reset clears the stop flag
			supervisor.Reset()
			workerCtx, cancelWorker = context.WithCancel(context.Background())
			go supervisor.Start(workerCtx)
		},
		Stop: supervisor.Stop,
		ResetTenant: func(tenantID string) error {
			return metaStore.DeleteTenantDocuments(context.Background(), tenantID)
		},
		ResetAll: func() error {
			return metaStore.DeleteAllDocuments(context.Background())
		},
	})

	srv := &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminServer,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.AdminAddr).Msg("worker admin surface starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server exited with error")
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	// Let in-flight documents finish, bounded by a drain deadline, before
	// cancelling whatever is still running.
	supervisor.Stop()
	select {
	case <-runDone:
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("drain deadline reached, cancelling in-flight documents")
	}
	cancelWorker()
	<-runDone

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful admin shutdown failed")
	}
}

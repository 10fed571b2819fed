package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/answerd/internal/assembler"
	"github.com/fyrsmithlabs/answerd/internal/cache"
	"github.com/fyrsmithlabs/answerd/internal/config"
	"github.com/fyrsmithlabs/answerd/internal/confidence"
	"github.com/fyrsmithlabs/answerd/internal/embeddings"
	"github.com/fyrsmithlabs/answerd/internal/engine"
	"github.com/fyrsmithlabs/answerd/internal/events"
	"github.com/fyrsmithlabs/answerd/internal/generation"
	"github.com/fyrsmithlabs/answerd/internal/httpapi"
	"github.com/fyrsmithlabs/answerd/internal/ingest"
	"github.com/fyrsmithlabs/answerd/internal/logging"
	"github.com/fyrsmithlabs/answerd/internal/retriever"
	"github.com/fyrsmithlabs/answerd/internal/session"
	"github.com/fyrsmithlabs/answerd/internal/telemetry"
	"github.com/fyrsmithlabs/answerd/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the answerd HTTP server",
	Long: `Start the answerd daemon with full service initialization: vector store,
embedding and generation clients, caches, event emission, and the HTTP API.

A vector store that cannot be reached at startup does not prevent serving;
the daemon runs degraded (empty retrieval, failing writes) until the
backend recovers and the process is restarted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting answerd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	embedSvc, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding client: %w", err)
	}

	genSvc, err := generation.NewService(generation.Config{
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		APIKey:  cfg.Generation.APIKey,
		Timeout: cfg.Generation.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initializing generation client: %w", err)
	}

	// A store that fails to initialize leaves the adapter degraded: reads
	// return empty, writes fail explicitly, the process still serves.
	store, err := vectorstore.NewStore(vectorstore.ProviderConfig{
		Provider:   cfg.VectorStore.Provider,
		VectorSize: cfg.VectorStore.VectorSize,
		Collection: cfg.VectorStore.Collection,
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Chromem.Path,
			Compress: cfg.VectorStore.Chromem.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:   cfg.VectorStore.Qdrant.Host,
			Port:   cfg.VectorStore.Qdrant.Port,
			UseTLS: cfg.VectorStore.Qdrant.UseTLS,
			APIKey: cfg.VectorStore.Qdrant.APIKey,
		},
	}, logger)
	if err != nil {
		logger.Warn("vector store initialization failed, serving degraded",
			zap.String("provider", cfg.VectorStore.Provider),
			zap.Error(err),
		)
		store = nil
	}
	adapter := vectorstore.NewAdapter(store, cfg.VectorStore.VectorSize, cfg.Embeddings.Model, logger)
	defer adapter.Close()

	emitter, closeEmitter := buildEmitter(cfg.Events, logger)
	defer closeEmitter()

	queryCache := cache.NewQueryCache(cfg.Cache.QueryTTL, logger)
	processingCache := cache.NewProcessingCache(cfg.Cache.ProcessingTTL, logger)
	sessions := session.NewStore(logger)

	retr := retriever.New(embedSvc, adapter, queryCache, retriever.Config{
		SimilarityThreshold: cfg.Engine.SimilarityThreshold,
		TopK:                cfg.Engine.TopK,
		Timeout:             cfg.Engine.RetrievalTimeout,
	}, emitter, metrics, logger)

	eng := engine.New(
		sessions,
		retr,
		assembler.New(assembler.Config{
			HistoryWindow: cfg.Engine.HistoryWindow,
			MaxChars:      cfg.Engine.MaxContextChars,
		}),
		confidence.NewScorer(cfg.Engine.ConfidenceCap, cfg.Engine.ConfidenceFloor, cfg.Engine.ConfidenceGeneral),
		genSvc,
		adapter,
		emitter,
		metrics,
		engine.Config{
			GenerationTimeout: cfg.Engine.GenerationTimeout,
			MaxTokens:         cfg.Generation.MaxTokens,
		},
		logger,
	)

	ingSvc := ingest.NewService(embedSvc, adapter, processingCache, sessions, retr, ingest.Config{}, logger)

	srv, err := httpapi.NewServer(eng, ingSvc, registry, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildEmitter wires the analytics pipeline. Without a NATS URL events are
// discarded; a NATS connection failure downgrades to discard rather than
// blocking startup.
func buildEmitter(cfg config.EventsConfig, logger *zap.Logger) (events.Emitter, func()) {
	if cfg.NATSURL == "" {
		return events.NopEmitter{}, func() {}
	}

	sink, err := events.NewNATSSink(cfg.NATSURL, cfg.SubjectPrefix, logger)
	if err != nil {
		logger.Warn("nats connection failed, events disabled",
			zap.String("url", cfg.NATSURL),
			zap.Error(err),
		)
		return events.NopEmitter{}, func() {}
	}

	emitter := events.NewAsyncEmitter(sink, cfg.Buffer, logger)
	return emitter, func() {
		_ = emitter.Close()
		_ = sink.Close()
	}
}

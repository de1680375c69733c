package cmd

import (
	"context"
	"fmt"

	"case-explainer/config"
	"case-explainer/database"
	"case-explainer/doccache"
	"case-explainer/graph"
	"case-explainer/llmclient"
	"case-explainer/rag"

	"go.uber.org/zap"
)

// app holds every long-lived component of a process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *database.PostgresStore
	graph   *graph.Graph
	docs    *doccache.Store
	llm     *llmclient.Client
	vectors *database.VectorIndex
	engine  *rag.Engine
}

// loadConfig follows the usual two-step start: a temporary logger to read the
// config, then the real one at the configured level.
func loadConfig() (*config.Config, *zap.Logger, error) {
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	cfg := config.Load(tempLogger)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("re-initialize logger with configured level: %w", err)
	}
	return cfg, logger, nil
}

// bootstrap connects to every store and builds the engine.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	a.store, err = database.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := a.store.EnsureSchema(ctx, cfg.EmbeddingDimensions); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure database schema: %w", err)
	}

	a.graph = graph.New(a.store.DB, logger, cfg.GraphEnabled)
	if err := a.graph.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure graph schema: %w", err)
	}

	a.docs, err = doccache.New(cfg.DocumentCachePath, cfg.DocumentCacheTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open document cache: %w", err)
	}

	a.llm = llmclient.New(cfg, logger)
	a.vectors = database.NewVectorIndex(a.store, a.llm.Embed, logger)

	sources := rag.Sources{
		Relational: a.store,
		Documents:  a.docs,
		Vectors:    a.vectors,
	}
	opts := []rag.Option{
		rag.WithHistory(a.store),
		rag.WithHealthCheck("postgres", a.store),
		rag.WithHealthCheck("document_cache", a.docs),
	}
	if a.graph.Enabled() {
		sources.Graph = a.graph
		opts = append(opts, rag.WithHealthCheck("graph", a.graph))
	}

	a.engine, err = rag.New(cfg, sources, a.llm, logger, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize engine: %w", err)
	}

	logger.Info("Case explainer ready",
		zap.Bool("graph_enabled", a.graph.Enabled()),
		zap.Bool("coalesce_misses", cfg.CoalesceMisses),
		zap.Int("answer_cache_size", cfg.AnswerCacheSize),
		zap.Int("context_cache_size", cfg.ContextCacheSize))
	return a, nil
}

func (a *app) Close() {
	if a.docs != nil {
		if err := a.docs.Close(); err != nil {
			a.logger.Warn("Failed to close document cache", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
	config.Cleanup()
}

package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/fabfab/contract-agent/agent"
	"github.com/fabfab/contract-agent/config"
	"github.com/fabfab/contract-agent/database"
	"github.com/fabfab/contract-agent/embeddings"
	"github.com/fabfab/contract-agent/ingestion"
	"github.com/fabfab/contract-agent/llm"
	"github.com/fabfab/contract-agent/logging"
	"github.com/fabfab/contract-agent/orchestrator"
	"github.com/fabfab/contract-agent/precedence"
	"github.com/fabfab/contract-agent/store"
	"github.com/fabfab/contract-agent/suggest"
)

const queryCacheSize = 256

// app holds the wired engine and the connections it must release.
type app struct {
	engine    *orchestrator.Orchestrator
	suggester *suggest.Suggester
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires the store, agents and orchestrator. With a manifest path the
// contract is served from memory; otherwise from Postgres, with overrides
// optionally read from Neo4j.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger, manifestPath string) (*app, error) {
	a := &app{}
	logger = logging.OrNop(logger)

	passageEmbedder, embedder := newEmbedders(cfg, logger)

	var st store.Store
	if manifestPath != "" {
		mem, err := loadManifest(ctx, manifestPath, passageEmbedder)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = mem.Close() })
		st = mem
	} else {
		pool, err := database.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		st, err = postgresStore(ctx, cfg, pool, a)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	opts := agent.Options{
		RetrievalLimit:      cfg.Orchestrator.RetrievalLimit,
		SimilarityThreshold: cfg.Orchestrator.SimilarityThreshold,
	}
	resolver := precedence.NewResolver(st)

	docsLLM, docsErr := llm.NewClient(cfg, cfg.DocumentsLLM)
	condsLLM, condsErr := llm.NewClient(cfg, cfg.ConditionsLLM)
	agents := []agent.Agent{
		agent.NewDocumentsAgent(st, embedder, docsLLM, docsErr, opts, logger),
		agent.NewConditionsAgent(st, resolver, embedder, condsLLM, condsErr, opts, logger),
	}

	a.engine = orchestrator.New(agents, resolver, orchestrator.Options{
		AlwaysBoth: cfg.Orchestrator.AlwaysBoth,
		Threshold:  cfg.Orchestrator.ConfidenceThreshold,
		Logger:     logger,
	})

	suggestLLM, err := llm.NewClient(cfg, cfg.SuggestLLM)
	if err != nil {
		logger.Info("suggestions will use fallbacks", zap.Error(err))
		suggestLLM = nil
	}
	a.suggester = suggest.NewSuggester(suggestLLM, suggest.NewGate(cfg.Suggest.Cooldown), cfg.Suggest.Count, logger)

	return a, nil
}

// newEmbedders returns the plain embedder for passages and a cached one for
// queries. Both are nil when embeddings are disabled.
func newEmbedders(cfg config.Config, logger *zap.Logger) (passages, queries embeddings.Embedder) {
	base, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Warn("embeddings disabled, retrieval falls back to keyword search", zap.Error(err))
		return nil, nil
	}
	return base, embeddings.NewCached(base, queryCacheSize)
}

func postgresStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, a *app) (store.Store, error) {
	pg := store.NewPostgresStore(pool)
	if cfg.OverrideSource != config.OverrideSourceNeo4j {
		return pg, nil
	}
	driver, err := database.NewNeo4jDriver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("neo4j connection: %w", err)
	}
	a.closers = append(a.closers, func() { _ = driver.Close(context.Background()) })
	return store.Composite{Store: pg, OverrideSource: store.NewNeo4jOverrideStore(driver)}, nil
}

func loadManifest(ctx context.Context, path string, embedder embeddings.Embedder) (*store.MemoryStore, error) {
	snap, err := ingestion.LoadFile(path)
	if err != nil {
		return nil, err
	}
	mem, err := store.NewMemoryStore()
	if err != nil {
		return nil, err
	}
	if err := ingestion.LoadMemory(ctx, mem, embedder, snap); err != nil {
		_ = mem.Close()
		return nil, err
	}
	return mem, nil
}

func openNeo4j(ctx context.Context, cfg config.Config) (neo4j.DriverWithContext, error) {
	driver, err := database.NewNeo4jDriver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("neo4j connection: %w", err)
	}
	return driver, nil
}

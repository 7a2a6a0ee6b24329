// Package bootstrap wires configuration, infrastructure and use cases into
// a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okutan/corpusqa/internal/config"
	"github.com/okutan/corpusqa/internal/core/domain"
	"github.com/okutan/corpusqa/internal/core/ports"
	"github.com/okutan/corpusqa/internal/core/usecase"
	"github.com/okutan/corpusqa/internal/infrastructure/cache"
	neo4jgraph "github.com/okutan/corpusqa/internal/infrastructure/graph/neo4j"
	"github.com/okutan/corpusqa/internal/infrastructure/llm/ollama"
	"github.com/okutan/corpusqa/internal/infrastructure/pool"
	natsqueue "github.com/okutan/corpusqa/internal/infrastructure/queue/nats"
	"github.com/okutan/corpusqa/internal/infrastructure/repository/postgres"
	"github.com/okutan/corpusqa/internal/infrastructure/resilience"
	"github.com/okutan/corpusqa/internal/infrastructure/spell"
	"github.com/okutan/corpusqa/internal/infrastructure/vector/qdrant"
	"github.com/okutan/corpusqa/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.ServiceMetrics

	SearchUC ports.SearchService
	AnswerUC ports.AnswerService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	lexical := postgres.NewLexicalIndex(db)
	contentStore := postgres.NewContentStore(db)

	serviceMetrics := metrics.NewServiceMetrics("corpusqa")

	// Cache: always the in-process tier, Redis behind it when configured.
	localTier := cache.NewMemoryTier(cfg.CacheLocalEntries)
	var sharedTier cache.SharedTier
	var redisTier *cache.RedisTier
	if cfg.RedisAddr != "" {
		redisTier = cache.NewRedisTier(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisTier.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, running with in-process cache only", "error", err)
			_ = redisTier.Close()
			redisTier = nil
		} else {
			sharedTier = redisTier
		}
	}
	tieredCache := cache.NewTieredStore(localTier, sharedTier, cache.TTLConfig{
		Short:  time.Duration(cfg.CacheShortTTLMinutes) * time.Minute,
		Medium: time.Duration(cfg.CacheMediumTTLMins) * time.Minute,
		Long:   time.Duration(cfg.CacheLongTTLMinutes) * time.Minute,
	})
	tieredCache.Observe(func(tier string, hit bool) {
		serviceMetrics.RecordCacheLookup("corpusqa", tier, hit)
	})

	// Spell dictionary comes from corpus term statistics; an empty corpus
	// just means no corrections yet.
	speller := spell.NewCorrector()
	if freqs, err := lexical.TermFrequencies(ctx, cfg.SpellDictionaryLimit); err != nil {
		logger.Warn("spell dictionary load failed", "error", err)
	} else {
		speller.Load(freqs)
		logger.Info("spell dictionary loaded", "terms", speller.Size())
	}

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	var graphIndex ports.GraphIndex
	var graphClose func()
	if cfg.Neo4jURI != "" {
		graph, err := neo4jgraph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("neo4j unavailable, graph strategy disabled", "error", err)
		} else {
			graphIndex = graph
			graphClose = func() { _ = graph.Close(context.Background()) }
		}
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	primary := ollama.New("primary", cfg.PrimaryOllamaURL, cfg.PrimaryChatModel, cfg.EmbedModel, executor)
	var secondary ports.ChatProvider
	if cfg.SecondaryOllamaURL != "" && cfg.SecondaryChatModel != "" {
		secondary = ollama.New("secondary", cfg.SecondaryOllamaURL, cfg.SecondaryChatModel, cfg.EmbedModel, executor)
	}
	providers := usecase.ProviderPair{Primary: primary, Secondary: secondary}

	var auditSink ports.AuditSink
	var auditClose func()
	sink, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		logger.Warn("nats unavailable, audit records will be dropped", "error", err)
	} else {
		auditSink = sink
		auditClose = sink.Close
	}

	strategyPool, err := pool.New(cfg.StrategyPoolSize)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init strategy pool: %w", err)
	}

	versions := usecase.ModelVersions{
		EmbeddingModel: cfg.EmbedModel,
		ChatModel:      cfg.PrimaryChatModel,
	}

	fusionMode, ok := domain.ParseFusionMode(cfg.FusionMode)
	if !ok {
		logger.Warn("unknown fusion mode, falling back to concat", "mode", cfg.FusionMode)
		fusionMode = domain.FusionConcat
	}

	expander := usecase.NewExpandUseCase(primary, tieredCache, versions, cfg.ExpansionVariations)
	intents := usecase.NewIntentUseCase(primary, tieredCache, versions)

	searchUC := usecase.NewSearchUseCase(
		lexical,
		vectorIndex,
		graphIndex,
		primary,
		speller,
		expander,
		tieredCache,
		strategyPool,
		versions,
		usecase.SearchConfig{
			FusionMode:          fusionMode,
			RRFK:                cfg.FusionRRFK,
			StrategyLimit:       cfg.StrategyLimit,
			FinalLimit:          cfg.FinalLimit,
			TypoRescueThreshold: cfg.TypoRescueThreshold,
			SemanticTailDefault: cfg.SemanticTailDefault,
			GraphHops:           cfg.GraphHops,
			GraphSeeds:          cfg.GraphSeeds,
			ExpansionVariations: cfg.ExpansionVariations,
			StrategyTimeout:     time.Duration(cfg.StrategyTimeoutSeconds) * time.Second,
			ExpanderTimeout:     time.Duration(cfg.ExpanderTimeoutSeconds) * time.Second,
			OverallTimeout:      time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		},
	)

	answerUC := usecase.NewAnswerUseCase(
		searchUC,
		intents,
		contentStore,
		providers,
		providers,
		auditSink,
		usecase.AnswerConfig{
			FastTrackThreshold: cfg.FastTrackThreshold,
			MaxAuditCycles:     cfg.MaxAuditCycles,
			ContextTopN:        cfg.ContextTopN,
			WorkTimeout:        time.Duration(cfg.WorkTimeoutSeconds) * time.Second,
			JudgeTimeout:       time.Duration(cfg.JudgeTimeoutSeconds) * time.Second,
		},
	)

	return &App{
		Config:   cfg,
		Metrics:  serviceMetrics,
		SearchUC: searchUC,
		AnswerUC: answerUC,
		closeFn: func() {
			strategyPool.Release()
			if auditClose != nil {
				auditClose()
			}
			if graphClose != nil {
				graphClose()
			}
			if redisTier != nil {
				_ = redisTier.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

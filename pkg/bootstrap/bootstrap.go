// Package bootstrap wires configuration into a ready research engine.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-search/pkg/cache"
	"github.com/mikeboe/deep-search/pkg/clients"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/crawler"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/search"
)

// App holds the long-lived collaborators shared by every run.
type App struct {
	Config  *config.Config
	DB      *database.PostgresDB
	Cache   *cache.Cache
	LLM     research.Generator
	FastLLM research.Generator
	Search  research.SearchProvider
	Crawl   research.CrawlProvider

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg}

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.closers = append(app.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		app.DB = db
	}

	var err error
	if app.Cache, err = app.newCache(ctx, logger); err != nil {
		app.Close()
		return nil, err
	}
	logger.Info("Cache configured", "backend", cfg.CacheBackend)

	if app.LLM, err = newGenerator(ctx, cfg, cfg.ReasoningModel); err != nil {
		app.Close()
		return nil, err
	}
	if app.FastLLM, err = newGenerator(ctx, cfg, cfg.FastModel); err != nil {
		app.Close()
		return nil, err
	}

	if app.Search, err = search.New(cfg.SearchProvider, cfg.SerperApiKey); err != nil {
		app.Close()
		return nil, err
	}

	var pdf crawler.PDFExtractor
	if cfg.MistralApiKey != "" {
		pdf = crawler.NewMistralOCR(cfg.MistralApiKey)
	}
	app.Crawl = crawler.New(cfg.CrawlConcurrency, pdf)

	return app, nil
}

// newCache always returns a Cache so concurrent identical work is shared even
// when nothing is retained.
func (a *App) newCache(ctx context.Context, logger *slog.Logger) (*cache.Cache, error) {
	store, err := a.cacheStore(ctx)
	if err != nil {
		return nil, err
	}
	return cache.New(store, cache.WithTTL(a.Config.CacheTTL), cache.WithLogger(logger)), nil
}

func (a *App) cacheStore(ctx context.Context) (cache.Store, error) {
	switch a.Config.CacheBackend {
	case "none":
		return nil, nil
	case "", "memory":
		return cache.NewMemoryStore(0), nil
	case "redis":
		store, err := cache.NewRedisStore(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { store.Close() })
		return store, nil
	case "postgres":
		if a.DB == nil {
			return nil, fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
		return cache.NewPostgresStore(a.DB.Pool), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.Config.CacheBackend)
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, model string) (research.Generator, error) {
	switch cfg.LLMProvider {
	case "", "genai":
		g, err := clients.NewGenAI(ctx, cfg.GoogleApiKey, model)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "langchain":
		llm, err := clients.GoogleAi(ctx, cfg.GoogleApiKey, model)
		if err != nil {
			return nil, err
		}
		return clients.NewLangChain(llm), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

// ResearchConfig maps the environment configuration onto engine tunables.
func ResearchConfig(cfg *config.Config) research.Config {
	rc := research.DefaultConfig()
	rc.MaxRounds = cfg.MaxRounds
	rc.SearchResults = cfg.SearchResultsCount
	rc.CrawlRetries = cfg.CrawlMaxRetries
	rc.StructuredRetries = cfg.StructuredRetries
	rc.MaxContentChars = cfg.MaxContentChars
	return rc
}

// NewEngine builds an engine whose components log to logger.
func (a *App) NewEngine(logger *slog.Logger) (*research.Engine, error) {
	return research.NewEngine(ResearchConfig(a.Config), research.Deps{
		LLM:     a.LLM,
		FastLLM: a.FastLLM,
		Search:  a.Search,
		Crawl:   a.Crawl,
		Cache:   a.Cache,
		Logger:  logger,
	})
}

// Close releases stores and connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

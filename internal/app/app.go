// Package app wires configuration, storage, the language model and the
// newspaper pipeline together behind an HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deusflow/newspaper/internal/cache"
	"github.com/deusflow/newspaper/internal/catalog"
	"github.com/deusflow/newspaper/internal/config"
	"github.com/deusflow/newspaper/internal/llm"
	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/news"
	"github.com/deusflow/newspaper/internal/newspaper"
	"github.com/deusflow/newspaper/internal/ratelimit"
	"github.com/deusflow/newspaper/internal/retry"
	"github.com/deusflow/newspaper/internal/rss"
	"github.com/deusflow/newspaper/internal/scraper"
	"github.com/deusflow/newspaper/internal/storage"
	"github.com/deusflow/newspaper/internal/suggest"
	"github.com/deusflow/newspaper/internal/telegram"
	"github.com/deusflow/newspaper/internal/translate"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	cfg       *config.Config
	store     *storage.Store
	repo      *CachedRepository
	engine    *suggest.Engine
	generator *newspaper.Generator
	limiter   *ratelimit.AIRateLimiter
	router    chi.Router
	closers   []func()
}

// New builds the application from cfg. The catalog is seeded into the
// database on every start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Catalog loaded", "categories", len(cat.Categories), "path", cfg.CatalogPath)

	a.store, err = storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.store.Close() })
	if err := a.store.SeedCatalog(ctx, cat); err != nil {
		a.Close()
		return nil, err
	}

	a.limiter = ratelimit.NewAIRateLimiter(nil, cfg.MaxDailyRequests)
	inv, err := a.newInvoker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.repo = NewCachedRepository(a.store, cfg.PopularCacheTTL)
	a.closers = append(a.closers, a.repo.Close)

	a.engine = suggest.NewEngine(a.repo, cat, inv, cfg.CapableModel, suggest.NewHTTPChecker(cfg.ValidateTimeout))
	a.engine.LLMTimeout = cfg.SuggestTimeout
	a.engine.Discoverer = scraper.New(cfg.ValidateTimeout)
	if cfg.SuggestionCache {
		a.engine.Cache = cache.New[model.Suggestions](cfg.SuggestionCacheTTL)
		a.closers = append(a.closers, a.engine.Cache.Close)
	}

	ranker := news.NewRanker(inv, cfg.FastModel, nil)
	ranker.FilterTimeout = cfg.FilterTimeout
	ranker.ScoreTimeout = cfg.ScoreTimeout

	writer := &newspaper.Writer{
		LLM:     inv,
		Model:   cfg.FastModel,
		Timeout: cfg.SummaryTimeout,
		Retry:   retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryDelay},
	}

	a.generator = newspaper.NewGenerator(a.engine, rss.NewFetcher(cfg.FeedTimeout), ranker, writer, a.store)
	if cfg.TranslateHeadlines {
		tr := translate.New(inv, cfg.FastModel)
		tr.Timeout = cfg.SummaryTimeout
		a.generator.Translator = tr
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := telegram.New(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Warn("Telegram publishing disabled", "err", err)
		} else {
			tg.Retry = retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryDelay}
			a.generator.Publisher = tg
			logger.Info("Telegram publishing enabled", "chat", cfg.TelegramChatID)
		}
	}
	a.router = a.routes()

	logger.Info("Application ready", "ai_provider", cfg.AIProvider, "database", cfg.DatabaseDriver)
	return a, nil
}

// newInvoker picks the LLM backend. Real backends share one daily budget.
func (a *App) newInvoker(ctx context.Context) (llm.Invoker, error) {
	var inv llm.Invoker
	switch a.cfg.AIProvider {
	case "mock":
		logger.Info("Mock mode: LLM calls use algorithmic fallbacks")
		return llm.Offline{}, nil
	case "gemini":
		g, err := llm.NewGemini(ctx, a.cfg.AIKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		inv = g
	case "openai":
		inv = llm.NewOpenAI(a.cfg.AIBaseURL, a.cfg.AIKey)
	case "ollama":
		o, err := llm.NewOllama(a.cfg.AIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		inv = o
	default:
		return nil, fmt.Errorf("unknown AI provider %q", a.cfg.AIProvider)
	}
	return llm.NewLimited(inv, a.limiter), nil
}

func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

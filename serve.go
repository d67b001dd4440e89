package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/incipit-labs/folio-engine/pkg/aggregate"
	"github.com/incipit-labs/folio-engine/pkg/apperrors"
	"github.com/incipit-labs/folio-engine/pkg/config"
	"github.com/incipit-labs/folio-engine/pkg/database"
	"github.com/incipit-labs/folio-engine/pkg/dialogue"
	"github.com/incipit-labs/folio-engine/pkg/enrich"
	"github.com/incipit-labs/folio-engine/pkg/executor"
	"github.com/incipit-labs/folio-engine/pkg/handlers"
	"github.com/incipit-labs/folio-engine/pkg/llm"
	"github.com/incipit-labs/folio-engine/pkg/logging"
	"github.com/incipit-labs/folio-engine/pkg/middleware"
	"github.com/incipit-labs/folio-engine/pkg/planner"
	"github.com/incipit-labs/folio-engine/pkg/schema"
	"github.com/incipit-labs/folio-engine/pkg/sessions"
)

// shutdownGrace is how long in-flight requests get on SIGTERM.
const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(Version)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	handler := middleware.RequestLogger(logger)(app.mux)

	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting folio-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// app bundles the wired service and its owned resources.
type app struct {
	mux     *http.ServeMux
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires every component the HTTP surface needs. The index is
// opened read-only and its schema contract verified up front: a missing or
// divergent index fails startup rather than serving wrong answers.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{mux: http.NewServeMux()}

	indexDB, err := database.OpenReadOnly(cfg.BibliographicDBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open index %s: %s", apperrors.ErrDependencyNotReady, cfg.BibliographicDBPath, err.Error())
	}
	a.closers = append(a.closers, func() { indexDB.Close() })
	if err := schema.Verify(indexDB); err != nil {
		a.close()
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDependencyNotReady, err.Error())
	}

	sessionsDB, err := database.Open(cfg.SessionsDBPath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open sessions db: %w", err)
	}
	a.closers = append(a.closers, func() { sessionsDB.Close() })
	store, err := sessions.NewStore(sessionsDB, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	enricher, jobs, err := buildEnrichment(ctx, cfg, logger, a)
	if err != nil {
		a.close()
		return nil, err
	}

	plans, err := planner.OpenPlanCache(cfg.PlanCachePath, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	client, err := llm.New(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey(),
		Timeout:  cfg.LLM.Timeout(),
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	engine := dialogue.New(dialogue.Deps{
		LLM:        client,
		Breaker:    llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()),
		Plans:      plans,
		Executor:   executor.New(indexDB, executor.NewRunStore(cfg.RunsDir), logger),
		Aggregator: aggregate.New(indexDB, logger),
		Enricher:   enricher,
		Sessions:   store,
		IndexDB:    indexDB,
		Logger:     logger,
	})

	if cfg.Enrichment.WorkerEnabled && jobs != nil {
		go jobs.RunWorker(ctx, enricher, time.Minute)
	}

	rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, logger)

	chat := handlers.NewChatHandler(engine, logger)
	a.mux.Handle("POST /chat", rl.Middleware(http.HandlerFunc(chat.Chat)))

	handlers.NewSessionsHandler(store, logger).RegisterRoutes(a.mux)
	handlers.NewHealthHandler(cfg, indexDB, store, logger).RegisterRoutes(a.mux)
	handlers.NewWSHandler(engine, logger).RegisterRoutes(a.mux)

	return a, nil
}

// buildEnrichment opens the enrichment cache database and starts the
// reaper. Returns the enricher plus the job queue for the optional worker.
func buildEnrichment(ctx context.Context, cfg *config.Config, logger *zap.Logger, a *app) (*enrich.Enricher, *enrich.JobQueue, error) {
	enrichDB, err := database.Open(cfg.EnrichmentDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open enrichment db: %w", err)
	}
	a.closers = append(a.closers, func() { enrichDB.Close() })

	cache, err := enrich.NewCache(enrichDB, logger)
	if err != nil {
		return nil, nil, err
	}
	cache.StartReaper(ctx, time.Duration(cfg.Enrichment.ReaperIntervalMinutes)*time.Minute)

	wikidata := enrich.NewWikidataClient(enrich.ClientConfig{
		BaseURL:            cfg.Enrichment.WikidataBaseURL,
		SPARQLEndpoint:     cfg.Enrichment.WikidataSPARQLEndpoint,
		MinRequestInterval: cfg.Enrichment.MinRequestInterval(),
	}, logger)
	enricher := enrich.NewEnricher(cache, wikidata, cfg.Enrichment.TTL(), logger)
	return enricher, enrich.NewJobQueue(enrichDB, logger), nil
}

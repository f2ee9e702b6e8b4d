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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Gemini-Podplai/mumabear/internal/analytics"
	"github.com/Gemini-Podplai/mumabear/internal/api"
	"github.com/Gemini-Podplai/mumabear/internal/budget"
	"github.com/Gemini-Podplai/mumabear/internal/config"
	"github.com/Gemini-Podplai/mumabear/internal/database"
	"github.com/Gemini-Podplai/mumabear/internal/decisions"
	"github.com/Gemini-Podplai/mumabear/internal/express"
	"github.com/Gemini-Podplai/mumabear/internal/logging"
	"github.com/Gemini-Podplai/mumabear/internal/metrics"
	"github.com/Gemini-Podplai/mumabear/internal/provider"
	"github.com/Gemini-Podplai/mumabear/internal/router"
	"github.com/Gemini-Podplai/mumabear/internal/session"
	"github.com/Gemini-Podplai/mumabear/pkg/cache"
)

func runServe() error {
	fmt.Println("==============================================")
	fmt.Println("  Mama Bear - Express LLM Router")
	fmt.Println("==============================================")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	for _, m := range cfg.DegradedModes() {
		log.Warn(m)
	}

	ctx := context.Background()

	// Database. Without it the router still serves chat; management routes return 503.
	var db *database.DB
	dbCtx, dbCancel := context.WithTimeout(ctx, 30*time.Second)
	db, err = database.New(dbCtx, cfg.DSN())
	if err != nil {
		log.WithError(err).WithField("dsn", cfg.RedactedDSN()).Warn("Database unavailable. Request history and management API disabled.")
		db = nil
	} else {
		defer db.Close()
		if err := db.Migrate(dbCtx); err != nil {
			dbCancel()
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("Database connected and migrations applied.")
	}
	dbCancel()

	// Redis backs budgets and rate limiting.
	rc, err := cache.NewCache(ctx, cache.Options{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword})
	if err != nil {
		log.WithError(err).Warn("Redis unavailable. Budgets follow MAMABEAR_BUDGET_FAIL_OPEN; rate limiting disabled.")
		rc = nil
	} else {
		defer rc.Close()
	}

	enforcer := budget.NewEnforcer(rc, cfg.BudgetFailOpen)
	if cfg.UserDailyBudgetUSD > 0 {
		enforcer.WithDefaultLimit(budget.ScopeUser, cfg.UserDailyBudgetUSD)
	}

	catalog := router.DefaultCatalog()
	rules, err := router.LoadRules(cfg.RulesFile, catalog)
	if err != nil {
		return fmt.Errorf("loading routing rules: %w", err)
	}
	fallback, ok := catalog.Get(cfg.FallbackModel)
	if !ok {
		return fmt.Errorf("fallback model %q is not in the catalog", cfg.FallbackModel)
	}

	registry := provider.NewRegistryFromConfig(ctx, cfg)
	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	hub := session.NewHub()
	sessions := session.NewManager(hub, collectors.ActiveSessions)

	svcOpts := express.Options{
		Router:        router.NewRouter(catalog, rules),
		Executor:      provider.NewExecutor(registry, fallback, cfg.RequestTimeout),
		Registry:      registry,
		Recorder:      metrics.NewRecorder(collectors),
		Decisions:     decisions.NewLog(decisions.DefaultCapacity),
		Collectors:    collectors,
		Budget:        enforcer,
		MaxConcurrent: cfg.MaxConcurrent,
	}
	deps := api.Deps{
		Sessions: sessions,
		Hub:      hub,
		Enforcer: enforcer,
		Integrations: map[string]bool{
			"pipedream": cfg.PipedreamToken != "",
			"mem0":      cfg.Mem0APIKey != "",
		},
	}
	// Interfaces stay nil (not typed-nil) without a database.
	if db != nil {
		svcOpts.Store = db
		deps.Store = db
		deps.Insights = analytics.NewInsightsEngine(db.Pool, catalog)
	}
	svc := express.NewService(svcOpts)
	deps.Service = svc

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := api.NewRouter(api.NewHandlers(deps), api.RouterConfig{
		AdminAPIKey:    cfg.AdminAPIKey,
		ChatAPIKey:     cfg.ChatAPIKey,
		AllowedOrigins: cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		Cache:          rc,
		Metrics:        promhttp.Handler(),
	})
	if cfg.AdminAPIKey == "" {
		log.Warn("MAMABEAR_ADMIN_API_KEY not set. Management API is disabled (fail-secure).")
	}
	if cfg.ChatAPIKey == "" {
		log.Warn("MAMABEAR_API_KEY not set. Chat endpoints are unauthenticated.")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("Mama Bear express router is ready")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	svc.Close()
	log.Info("Server exited.")
	return nil
}

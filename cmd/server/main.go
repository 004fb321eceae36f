package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/credit-ledger-go/internal/analyzer"
	"github.com/openclaw/credit-ledger-go/internal/billing"
	"github.com/openclaw/credit-ledger-go/internal/config"
	"github.com/openclaw/credit-ledger-go/internal/database"
	"github.com/openclaw/credit-ledger-go/internal/handler"
	"github.com/openclaw/credit-ledger-go/internal/identity"
	"github.com/openclaw/credit-ledger-go/internal/jobs"
	"github.com/openclaw/credit-ledger-go/internal/ledger"
	"github.com/openclaw/credit-ledger-go/internal/middleware"
	"github.com/openclaw/credit-ledger-go/internal/redis"
	"github.com/openclaw/credit-ledger-go/internal/service"
	"github.com/openclaw/credit-ledger-go/internal/sse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logCloser := config.SetupLogger(cfg)
	defer logCloser.Close()

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Str("dialect", string(db.Dialect)).Msg("database ready")

	store := ledger.NewStore(db, cfg.SeedCredits)

	var (
		publisher  sse.Publisher      = sse.Discard{}
		subscriber handler.Subscriber
		limiter    middleware.Limiter = middleware.NewRateLimiter()
		redisCheck handler.PingFunc
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		broker := sse.NewBroker(redisClient)
		defer broker.Close()

		publisher = broker
		subscriber = broker
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
		redisCheck = redisClient.Check
	} else {
		log.Warn().Msg("REDIS_URL not set: in-process rate limits, event stream disabled")
	}

	stripeBilling := billing.New(billing.Options{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Tolerance:     cfg.WebhookTolerance(),
		SiteURL:       cfg.SiteURL,
	})
	verifier := identity.NewVerifier(cfg.IdentityJWTSecret, cfg.IdentityIssuer)

	accountService := service.NewAccountService(store, publisher)
	debitService := service.NewDebitService(store, publisher)
	historyService := service.NewHistoryService(store)
	videoRequestService := service.NewVideoRequestService(store, publisher)
	paymentService := service.NewPaymentService(stripeBilling)
	webhookService := service.NewWebhookService(store, stripeBilling, service.NewCreditService(), publisher)

	authMiddleware := middleware.NewAuthMiddleware(verifier, accountService)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminTokenHash)
	accountRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin, middleware.ByAccount)
	webhookRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin*10, middleware.ByIP)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	webhookBodyLimit := middleware.NewBodyLimitMiddleware(middleware.WebhookMaxBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	healthHandler := handler.NewHealthHandler(store)
	if redisCheck != nil {
		healthHandler.WithRedis(redisCheck)
	}
	accountHandler := handler.NewAccountHandler(accountService)
	creditsHandler := handler.NewCreditsHandler(debitService)
	historyHandler := handler.NewHistoryHandler(historyService)
	videoRequestHandler := handler.NewVideoRequestHandler(videoRequestService)
	checkoutHandler := handler.NewCheckoutHandler(paymentService)
	eventsHandler := handler.NewEventsHandler(subscriber, accountService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	adminHandler := handler.NewAdminHandler(accountService, webhookService, videoRequestService)

	var analysisHandler *handler.AnalysisHandler
	if cfg.AnalyzerURL != "" {
		remote := analyzer.NewClient(cfg.AnalyzerURL, cfg.AnalyzerTimeout())
		analysisHandler = handler.NewAnalysisHandler(service.NewAnalysisService(debitService, historyService, remote))
	} else {
		log.Warn().Msg("ANALYZER_URL not set: /api/analyses disabled")
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(webhookRateLimit.Handler)
		r.Use(webhookBodyLimit.Handler)
		r.Post("/stripe", webhookHandler.Stripe)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", checkoutHandler.Plans)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)

			// Long-lived stream: no request timeout.
			r.Get("/events", eventsHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

				r.Mount("/account", accountHandler.Routes())
				r.Mount("/history", historyHandler.Routes())
				r.Mount("/checkout", checkoutHandler.Routes())

				r.Group(func(r chi.Router) {
					r.Use(accountRateLimit.Handler)
					r.Mount("/credits", creditsHandler.Routes())
					r.Mount("/video-requests", videoRequestHandler.Routes())
					if analysisHandler != nil {
						r.Mount("/analyses", analysisHandler.Routes())
					}
				})
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminMiddleware.Handler)
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Mount("/", adminHandler.Routes())
	})

	reconciliationJob := jobs.NewReconciliationJob(store.Webhooks(), store, config.ReconciliationJobInterval)
	reconciliationJob.Start()
	defer reconciliationJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

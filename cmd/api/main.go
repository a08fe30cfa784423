// Package main is the entrypoint for the Penletter API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/penletter/penletter/internal/auth"
	"github.com/penletter/penletter/internal/cache"
	"github.com/penletter/penletter/internal/config"
	"github.com/penletter/penletter/internal/email"
	"github.com/penletter/penletter/internal/handler"
	"github.com/penletter/penletter/internal/idempotency"
	"github.com/penletter/penletter/internal/metrics"
	"github.com/penletter/penletter/internal/middleware"
	"github.com/penletter/penletter/internal/model"
	"github.com/penletter/penletter/internal/repository"
	"github.com/penletter/penletter/internal/server"
	"github.com/penletter/penletter/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	sink, err := newNotificationSink(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure email provider", "provider", cfg.EmailProvider, "error", err)
		_ = cacheClient.Close()
		repo.Close()
		os.Exit(1)
	}

	renderer, err := email.NewRenderer()
	if err != nil {
		logger.Error("failed to compile email templates", "error", err)
		os.Exit(1)
	}

	// Services
	metricsRecorder := metrics.NewInMemory()
	hashPool := auth.NewHashPool(cfg.HashWorkers)
	verifier := auth.NewVerifier(repo, hashPool, logger, metricsRecorder)
	publisher := service.NewPublisher(repo, sink, verifier, logger, metricsRecorder)
	subscriptions := service.NewSubscriptionService(repo, sink, renderer, cfg.BaseURL, logger, metricsRecorder)
	passwords := service.NewPasswordService(repo, verifier, hashPool, logger)
	guard := idempotency.NewGuard(cacheClient, cfg.IdempotencyTTL, logger)

	// Handlers
	routes := routes{
		index:         handler.New(),
		health:        handler.NewHealthHandler(repo, cacheClient, logger),
		metrics:       handler.NewMetricsHandler(metricsRecorder),
		subscriptions: handler.NewSubscriptionHandler(subscriptions, logger),
		newsletters:   handler.NewNewsletterHandler(publisher, guard, metricsRecorder, logger),
		passwords:     handler.NewPasswordHandler(passwords, logger),
		sessions: handler.NewSessionHandler(handler.SessionHandlerConfig{
			Verifier:     verifier,
			Sessions:     cacheClient,
			Users:        repo,
			SessionTTL:   cfg.SessionTTL,
			SecureCookie: !cfg.IsDevelopment(),
			Logger:       logger,
		}),
	}

	r := setupRouter(routes, cacheClient, cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// LIFO: Redis closes before Postgres
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"email_provider", cfg.EmailProvider,
		"hash_workers", hashPool.Size(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newNotificationSink builds the email client selected by EMAIL_PROVIDER.
func newNotificationSink(ctx context.Context, cfg *config.Config) (service.NotificationSink, error) {
	sender, err := model.ParseSubscriberEmail(cfg.EmailSender)
	if err != nil {
		return nil, fmt.Errorf("EMAIL_SENDER: %w", err)
	}

	switch cfg.EmailProvider {
	case config.EmailProviderSES:
		client, err := email.NewSESClient(ctx, email.SESConfig{
			Region:    cfg.SESRegion,
			AccessKey: cfg.SESAccessKey,
			SecretKey: cfg.SESSecretKey,
			Sender:    sender,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return email.NewPostmarkClient(cfg.EmailBaseURL, sender, cfg.EmailAuthToken, cfg.EmailTimeout), nil
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type routes struct {
	index         *handler.Handler
	health        *handler.HealthHandler
	metrics       *handler.MetricsHandler
	subscriptions *handler.SubscriptionHandler
	sessions      *handler.SessionHandler
	newsletters   *handler.NewsletterHandler
	passwords     *handler.PasswordHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(h routes, cacheClient *cache.Cache, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: cfg.IsDevelopment(),
	}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))
	r.Use(middleware.CORS(cfg.GetCORSAllowedOrigins()))

	// Probes and metrics
	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)
	r.Get("/", h.index.Index)

	// Public subscription flow
	r.Post("/subscriptions", h.subscriptions.Subscribe)
	r.Get("/subscriptions/confirm", h.subscriptions.Confirm)

	// Password checks, rate limited per client IP across both endpoints
	credentialLimit := middleware.RateLimitCredentials(middleware.RateLimitConfig{
		Logger:            logger,
		Limiter:           cacheClient,
		Enabled:           cfg.LoginRateLimitEnabled,
		RequestsPerMinute: cfg.LoginRateLimitPerMinute,
		Burst:             cfg.LoginRateLimitBurst,
	})
	r.With(credentialLimit).Post("/newsletters", h.newsletters.Publish)
	r.With(credentialLimit).Post(middleware.LoginPath, h.sessions.Login)

	// Operator area
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireSession(middleware.SessionConfig{
			Logger:   logger,
			Sessions: cacheClient,
		}))

		r.Get("/dashboard", h.sessions.Dashboard)
		r.Post("/logout", h.sessions.Logout)
		r.Post("/password", h.passwords.ChangePassword)
		r.Post("/newsletters", h.newsletters.AdminPublish)
	})

	// 404 and 405 handlers
	r.NotFound(h.index.NotFound)
	r.MethodNotAllowed(h.index.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// sanitizeError replaces connection URLs in err with their redacted form.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, s := range secrets {
		if s == "" {
			continue
		}
		redacted := redactURL(s)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, s, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}

// Package main is the entry point for the UnifiedUI Session Service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/session-service/internal/api/handlers"
	"github.com/unifiedui/session-service/internal/api/middleware"
	"github.com/unifiedui/session-service/internal/api/routes"
	"github.com/unifiedui/session-service/internal/config"
	"github.com/unifiedui/session-service/internal/core/auditlog"
	"github.com/unifiedui/session-service/internal/core/events"
	"github.com/unifiedui/session-service/internal/core/secrets"
	"github.com/unifiedui/session-service/internal/core/sessionstore"
	"github.com/unifiedui/session-service/internal/infrastructure/auditlog/mongodb"
	noopaudit "github.com/unifiedui/session-service/internal/infrastructure/auditlog/noop"
	natsevents "github.com/unifiedui/session-service/internal/infrastructure/events/nats"
	noopevents "github.com/unifiedui/session-service/internal/infrastructure/events/noop"
	redisevents "github.com/unifiedui/session-service/internal/infrastructure/events/redis"
	envsecrets "github.com/unifiedui/session-service/internal/infrastructure/secrets/env"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/dual"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/instrumented"
	"github.com/unifiedui/session-service/internal/infrastructure/sessionstore/memory"
	redisstore "github.com/unifiedui/session-service/internal/infrastructure/sessionstore/redis"
	"github.com/unifiedui/session-service/internal/metrics"
	"github.com/unifiedui/session-service/internal/pkg/encryption"
	"github.com/unifiedui/session-service/internal/pkg/logging"
	"github.com/unifiedui/session-service/internal/server"
	"github.com/unifiedui/session-service/internal/services/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Secret references in the configuration are resolved once at startup
	if err := resolveSecrets(ctx, envsecrets.NewResolver(), cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to resolve secrets")
	}

	// Initialize session store and invalidation broadcasts
	store, notifier, err := createStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("store", string(cfg.Store.Type)).Msg("failed to initialize session store")
	}
	defer store.Close()
	defer notifier.Close()

	// Initialize audit log
	audit, err := createAuditLogger(ctx, cfg.Audit)
	if err != nil {
		log.Fatal().Err(err).Str("audit", string(cfg.Audit.Type)).Msg("failed to initialize audit log")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = audit.Close(closeCtx)
	}()

	// Initialize encryptor
	encryptor, err := createEncryptor(cfg.Session)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	// Initialize session service
	sessionService, err := session.NewService(&session.Config{
		Store:       store,
		Encryptor:   encryptor,
		Audit:       audit,
		IdleTTL:     cfg.Session.IdleTTL,
		AbsoluteTTL: cfg.Session.AbsoluteTTL,
		MaxPerUser:  cfg.Session.MaxPerUser,
		Instance:    cfg.Server.InstanceID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session service")
	}

	router := setupRouter(cfg, store, audit, sessionService)

	log.Info().
		Str("addr", cfg.Server.Address()).
		Int("workers", cfg.Server.Workers).
		Bool("reuse_port", cfg.Server.ReusePort).
		Str("store", string(cfg.Store.Type)).
		Str("events", string(cfg.Events.Type)).
		Str("instance", cfg.Server.InstanceID).
		Msg("starting server")

	err = server.Run(ctx, server.Options{
		Addr:            cfg.Server.Address(),
		Workers:         cfg.Server.Workers,
		ReusePort:       cfg.Server.ReusePort,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router)
	if err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server exited")
}

// resolveSecrets replaces secret references in cfg with their values.
func resolveSecrets(ctx context.Context, resolver secrets.Resolver, cfg *config.Config) error {
	refs := []*string{
		&cfg.Session.EncryptionKey,
		&cfg.Store.RedisPassword,
		&cfg.Server.APIKey,
		&cfg.Audit.URI,
	}
	for i := range cfg.Session.PreviousKeys {
		refs = append(refs, &cfg.Session.PreviousKeys[i])
	}

	var errs []error
	for _, ref := range refs {
		if *ref == "" {
			continue
		}
		value, err := resolver.Resolve(ctx, *ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*ref = value
	}
	return errors.Join(errs...)
}

// createStore creates the session store based on the configuration, wrapped
// with metrics. The returned notifier is never nil.
func createStore(ctx context.Context, cfg *config.Config) (sessionstore.Store, events.Notifier, error) {
	conn := redisstore.ConnConfig{
		Host:     cfg.Store.RedisHost,
		Port:     cfg.Store.RedisPort,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	}
	redisCfg := redisstore.Config{
		KeyPrefix:  cfg.Store.KeyPrefix,
		DefaultTTL: cfg.Session.IdleTTL,
		IndexTTL:   cfg.Session.AbsoluteTTL,
	}
	memoryCfg := memory.Config{
		DefaultTTL:      cfg.Session.IdleTTL,
		CleanupInterval: cfg.Store.CleanupInterval,
	}

	switch cfg.Store.Type {
	case sessionstore.TypeMemory:
		if cfg.Events.Type != events.TypeNone {
			log.Warn().Str("events", string(cfg.Events.Type)).Msg("invalidation events have no effect with the memory store")
		}
		return instrumented.Wrap(memory.NewStore(memoryCfg), string(cfg.Store.Type)), noopevents.NewNotifier(), nil

	case sessionstore.TypeRedis:
		primary, err := redisstore.NewStore(conn, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return instrumented.Wrap(primary, string(cfg.Store.Type)), noopevents.NewNotifier(), nil

	case sessionstore.TypeDual:
		primary, err := redisstore.NewStore(conn, redisCfg)
		if err != nil {
			return nil, nil, err
		}

		notifier, err := createNotifier(cfg, primary)
		if err != nil {
			_ = primary.Close()
			return nil, nil, err
		}

		store, err := dual.NewStore(dual.Config{
			Primary:   primary,
			Secondary: memory.NewStore(memoryCfg),
			Notifier:  notifier,
		})
		if err != nil {
			_ = notifier.Close()
			_ = primary.Close()
			return nil, nil, err
		}

		if err := store.Listen(ctx); err != nil {
			_ = notifier.Close()
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to subscribe to invalidations: %w", err)
		}

		return instrumented.Wrap(store, string(cfg.Store.Type)), notifier, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store type: %s", cfg.Store.Type)
	}
}

// createNotifier creates the invalidation notifier for the dual store.
func createNotifier(cfg *config.Config, primary *redisstore.Store) (events.Notifier, error) {
	switch cfg.Events.Type {
	case events.TypeNone:
		return noopevents.NewNotifier(), nil
	case events.TypeRedis:
		return redisevents.NewNotifier(primary.Client(), cfg.Events.Channel, cfg.Server.InstanceID), nil
	case events.TypeNATS:
		return natsevents.NewNotifier(natsevents.Config{
			URL:     cfg.Events.NATSURL,
			Subject: cfg.Events.Channel,
			Origin:  cfg.Server.InstanceID,
		})
	default:
		return nil, fmt.Errorf("unsupported events type: %s", cfg.Events.Type)
	}
}

// createAuditLogger creates the audit logger based on the configuration.
func createAuditLogger(ctx context.Context, cfg config.AuditConfig) (auditlog.Logger, error) {
	switch cfg.Type {
	case auditlog.TypeNone:
		return noopaudit.NewLogger(), nil
	case auditlog.TypeMongoDB:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		logger, err := mongodb.NewLogger(connectCtx, &mongodb.Config{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
			Retention:    cfg.Retention,
		})
		if err != nil {
			return nil, err
		}

		if err := logger.EnsureIndexes(connectCtx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure audit indexes")
		}
		return logger, nil
	default:
		return nil, fmt.Errorf("unsupported audit type: %s", cfg.Type)
	}
}

// createEncryptor creates an encryptor based on the configuration.
func createEncryptor(cfg config.SessionConfig) (encryption.Encryptor, error) {
	if cfg.EncryptionKey == "" {
		// Use NoOp encryptor in development
		log.Warn().Msg("SESSIONS_ENCRYPTION_KEY not set, session payloads are stored unencrypted")
		return encryption.NewNoOpEncryptor(), nil
	}

	return encryption.NewKeyring(cfg.EncryptionKey, cfg.PreviousKeys...)
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, store sessionstore.Store, audit auditlog.Logger, sessionService session.Service) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddlewareWithLogger(log.Logger.With().Str("component", "http").Logger())
	errorMw := middleware.NewErrorMiddleware()
	authMw := middleware.NewAuthMiddleware(cfg.Server.APIKey)
	if cfg.Server.APIKey == "" {
		log.Warn().Msg("SERVICE_API_KEY not set, management routes are unauthenticated")
	}

	cookie := middleware.CookieConfig{
		Name:     cfg.Session.CookieName,
		Domain:   cfg.Session.CookieDomain,
		Secure:   cfg.Session.CookieSecure,
		SameSite: cfg.Session.SameSite,
	}
	sessionMw := middleware.NewSessionMiddleware(sessionService, cookie)

	var cors gin.HandlerFunc
	if len(cfg.Server.CORSOrigins) > 0 {
		cors = middleware.NewCORSMiddleware(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))
	}

	// Create handlers
	healthHandler := handlers.NewHealthHandler(
		handlers.HealthComponent{Name: "store", Pinger: store},
		handlers.HealthComponent{Name: "audit", Pinger: audit},
	)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, cookie)
	usersHandler := handlers.NewUsersHandler(sessionService)

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:     healthHandler,
		SessionsHandler:   sessionsHandler,
		UsersHandler:      usersHandler,
		AuthMiddleware:    authMw,
		SessionMiddleware: sessionMw,
		MetricsHandler:    metrics.Handler(),
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw, cors)

	return router
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/riteshshukladev/wrapper/internal/auth"
	"github.com/riteshshukladev/wrapper/internal/config"
	"github.com/riteshshukladev/wrapper/internal/event"
	handler "github.com/riteshshukladev/wrapper/internal/handler/http"
	"github.com/riteshshukladev/wrapper/internal/migrations"
	"github.com/riteshshukladev/wrapper/internal/password"
	"github.com/riteshshukladev/wrapper/internal/repository"
	"github.com/riteshshukladev/wrapper/internal/repository/memory"
	"github.com/riteshshukladev/wrapper/internal/repository/postgres"
	redisrepo "github.com/riteshshukladev/wrapper/internal/repository/redis"
	"github.com/riteshshukladev/wrapper/internal/service"
	"github.com/riteshshukladev/wrapper/pkg/database"
	"github.com/riteshshukladev/wrapper/pkg/health"
	pkgkafka "github.com/riteshshukladev/wrapper/pkg/kafka"
	"github.com/riteshshukladev/wrapper/pkg/middleware"
	"github.com/riteshshukladev/wrapper/pkg/tracing"
	"github.com/riteshshukladev/wrapper/pkg/validator"
)

const (
	ServiceName    = "auth-service"
	ServiceVersion = "0.1.0"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	sessions       *service.SessionService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		if a.producer != nil {
			_ = a.producer.Close()
		}
		_ = a.closeStores()
		if a.tracerShutdown != nil {
			_ = a.tracerShutdown(context.Background())
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	healthHandler := health.NewHandler(logger)

	users, tokens, err := a.openStores(ctx, registry, healthHandler)
	if err != nil {
		return err
	}

	// Kafka producer; events are dropped when disabled.
	var publisher service.EventPublisher = event.Nop{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.Register("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	hasher, err := password.New(cfg.PasswordConfig())
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}
	validator.SetPasswordMinLength(cfg.PasswordMinLength)

	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	a.sessions = service.NewSessionService(users, tokens, issuer, hasher, publisher, service.NewMetrics(registry), logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(a.sessions, handler.RouterDeps{
		ServiceName: ServiceName,
		Health:      healthHandler,
		Metrics:     middleware.NewHTTPMetrics(registry, ServiceName),
		Gatherer:    registry,
		CORS:        cors,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// openStores connects the user repository and the refresh token store
// selected by STORAGE_BACKEND and TOKEN_STORE.
func (a *App) openStores(ctx context.Context, reg prometheus.Registerer, hh *health.Handler) (repository.UserRepository, repository.TokenStore, error) {
	cfg, logger := a.cfg, a.logger

	var (
		users  repository.UserRepository
		tokens repository.TokenStore
	)

	switch cfg.StorageBackend {
	case config.StorageMemory:
		store := memory.NewStore()
		users, tokens = store, store
		logger.Warn("using in-memory storage; all data is lost on restart")

	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, &database.PostgresConfig{
			Host:               cfg.PostgresHost,
			Port:               cfg.PostgresPort,
			User:               cfg.PostgresUser,
			Password:           cfg.PostgresPass,
			DBName:             cfg.PostgresDB,
			SSLMode:            cfg.PostgresSSL,
			MaxConns:           cfg.DBMaxConns,
			MinConns:           cfg.DBMinConns,
			SlowQueryThreshold: cfg.SlowQueryThreshold(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		reg.MustRegister(database.NewPoolStatsCollector(pool, ServiceName))
		hh.RegisterCritical("postgres", pool.Ping)

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		users, tokens = postgres.NewUserRepository(pool), postgres.NewTokenStore(pool)

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.TokenStoreBackend() == config.TokenStoreRedis {
		client, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("addr", client.Options().Addr))
		hh.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		tokens = redisrepo.NewTokenStore(client, cfg.RefreshTokenTTL)
	}

	return users, tokens, nil
}

func newIssuer(cfg *config.Config) (*auth.Issuer, error) {
	access, err := auth.NewCodec(auth.ClassAccess, cfg.AccessTokenSecret, cfg.AccessTokenTTL, auth.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("init access token codec: %w", err)
	}
	refresh, err := auth.NewCodec(auth.ClassRefresh, cfg.RefreshTokenSecret, cfg.RefreshTokenTTL, auth.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("init refresh token codec: %w", err)
	}
	issuer, err := auth.NewIssuer(access, refresh)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	return issuer, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: the HTTP server drains
// first, then pending spans are flushed, then the producer and stores close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var err error
	if a.redis != nil {
		if cerr := a.redis.Close(); cerr != nil {
			a.logger.Error("redis close error", slog.String("error", cerr.Error()))
			err = cerr
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return err
}

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
	goredis "github.com/redis/go-redis/v9"

	"github.com/tan-res-space/draft-genie-sub004/pkg/database"
	"github.com/tan-res-space/draft-genie-sub004/pkg/health"
	"github.com/tan-res-space/draft-genie-sub004/pkg/httpclient"
	pkgkafka "github.com/tan-res-space/draft-genie-sub004/pkg/kafka"
	"github.com/tan-res-space/draft-genie-sub004/pkg/tracing"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/auth"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/config"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/event"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/handler"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/proxy"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository/memory"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository/postgres"
	redisrepo "github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/repository/redis"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/service"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/migrations"
)

const serviceName = "gateway"

// App wires together all dependencies and runs the API gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	stopBackground context.CancelFunc
}

// stores holds the repositories selected by configuration.
type stores struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
}

// NewApp creates a new application instance. Postgres, Redis and Kafka are
// connected only when the configured backends need them.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeClients()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.OTEL)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if err := a.connect(ctx); err != nil {
		return nil, err
	}

	st, err := a.buildStores()
	if err != nil {
		return nil, err
	}

	var events service.EventPublisher = event.Nop{}
	if a.producer != nil {
		events = event.NewProducer(a.producer, logger)
	}

	// Build the dependency graph.
	hasher := auth.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenExpiry)
	apiKeys := auth.NewAPIKeyValidator(cfg.APIKeys)
	if apiKeys.Len() == 0 {
		logger.Warn("no API keys configured, service-to-service calls will be rejected")
	}
	credentials := service.NewCredentialStore(st.users, hasher, logger)
	authService := service.NewAuthService(credentials, st.refreshTokens, tokens, apiKeys, events, logger)

	if _, err := credentials.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		return nil, err
	}

	sp := proxy.NewServiceProxy(cfg, logger)
	healthHandler := a.healthChecks(sp)

	bgCtx, stop := context.WithCancel(context.Background())
	a.stopBackground = stop

	router := handler.NewRouter(bgCtx, cfg, handler.Deps{
		Auth:          handler.NewAuthHandler(authService, logger),
		Authenticator: authService,
		Proxy:         sp,
		Health:        healthHandler,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ProxyTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// connect opens the Postgres pool, Redis client and Kafka producer that the
// configuration asks for.
func (a *App) connect(ctx context.Context) error {
	cfg := a.cfg

	if cfg.NeedsPostgres() {
		pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, a.logger)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		a.logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.Postgres.Host),
			slog.Int("port", cfg.Postgres.Port),
			slog.String("database", cfg.Postgres.DBName),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			return fmt.Errorf("register pool metrics: %w", err)
		}

		if err := database.NewMigrator(pool, migrations.FS, a.logger).Up(ctx); err != nil {
			return err
		}
		a.logger.Info("database migrations completed")
	}

	if cfg.NeedsRedis() {
		client, err := database.NewRedisClient(ctx, cfg.Redis, a.logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		a.logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr))
	}

	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(cfg.Kafka, a.logger)
		a.logger.Info("kafka producer initialized", slog.Any("brokers", cfg.Kafka.Brokers))
	}
	return nil
}

func (a *App) buildStores() (stores, error) {
	var st stores

	switch a.cfg.UserStore {
	case config.BackendPostgres:
		st.users = postgres.NewUserRepository(a.pool, a.queryTracer(database.SystemPostgres))
	case config.BackendMemory:
		st.users = memory.NewUserRepository()
	default:
		return st, fmt.Errorf("unsupported user store %q", a.cfg.UserStore)
	}

	switch a.cfg.RefreshTokenStore {
	case config.BackendPostgres:
		st.refreshTokens = postgres.NewRefreshTokenRepository(a.pool, a.queryTracer(database.SystemPostgres))
	case config.BackendRedis:
		st.refreshTokens = redisrepo.NewRefreshTokenRepository(a.redis, a.queryTracer(database.SystemRedis))
	case config.BackendMemory:
		st.refreshTokens = memory.NewRefreshTokenRepository()
	default:
		return st, fmt.Errorf("unsupported refresh token store %q", a.cfg.RefreshTokenStore)
	}

	a.logger.Info("stores selected",
		slog.String("users", a.cfg.UserStore),
		slog.String("refresh_tokens", a.cfg.RefreshTokenStore),
	)
	return st, nil
}

func (a *App) queryTracer(system string) *database.QueryTracer {
	return database.NewQueryTracer(system, a.cfg.SlowQueryThreshold, a.logger)
}

// healthChecks registers storage backends as critical and Kafka plus the
// proxied services as non-critical.
func (a *App) healthChecks(sp *proxy.ServiceProxy) *health.Handler {
	h := health.NewHandler()
	if a.pool != nil {
		h.RegisterCritical("postgres", a.pool.Ping)
	}
	if a.redis != nil {
		h.RegisterCritical("redis", database.RedisPinger(a.redis).Ping)
	}
	if a.producer != nil {
		h.RegisterNonCritical("kafka", a.producer.Ping)
	}

	urls := a.cfg.ServiceURLs()
	for _, name := range sp.Services() {
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(a.cfg.Downstream),
			httpclient.DefaultCircuitBreakerConfig(name),
			a.logger,
		)
		h.RegisterNonCritical(name, handler.DownstreamCheck(client, name, urls[name]))
	}
	return h
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

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if a.stopBackground != nil {
		a.stopBackground()
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Release storage and messaging clients.
	errs = append(errs, a.closeClients()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeClients() []error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}

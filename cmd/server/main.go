package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/yourorg/payment-lifecycle/internal/config"
	"github.com/yourorg/payment-lifecycle/internal/eligibility"
	"github.com/yourorg/payment-lifecycle/internal/event/kafka"
	"github.com/yourorg/payment-lifecycle/internal/gateway"
	"github.com/yourorg/payment-lifecycle/internal/gateway/circuitbreaker"
	"github.com/yourorg/payment-lifecycle/internal/gateway/manual"
	gatewaymock "github.com/yourorg/payment-lifecycle/internal/gateway/mock"
	"github.com/yourorg/payment-lifecycle/internal/gateway/stripe"
	"github.com/yourorg/payment-lifecycle/internal/lock"
	"github.com/yourorg/payment-lifecycle/internal/logging"
	"github.com/yourorg/payment-lifecycle/internal/orchestrator"
	"github.com/yourorg/payment-lifecycle/internal/payment"
	"github.com/yourorg/payment-lifecycle/internal/store"
	"github.com/yourorg/payment-lifecycle/internal/store/memory"
	"github.com/yourorg/payment-lifecycle/internal/store/postgres"
)

// demoGatewayName is the always-succeeding gateway registered for local use.
const demoGatewayName = "Dummy"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: serviceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddCaller:   cfg.AppEnv == config.EnvLocal,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		logging.Sync(logger)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.AppEnv == config.EnvDocker {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := setupTracing(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	gateways, err := config.LoadGateways(cfg.GatewaysFile)
	if err != nil {
		return fmt.Errorf("load gateway settings: %w", err)
	}
	if err := eligibility.ValidateRules(gateways); err != nil {
		return fmt.Errorf("validate gateway rules: %w", err)
	}

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	hooks := orchestrator.NewDispatcher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("kafka publisher close failed", zap.Error(err))
			}
		}()
		hooks.AddPaymentObserver(publisher)
		logger.Info("publishing payment events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	registry := gateway.NewRegistry(
		circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{}),
		gatewaymock.NewMockGateway(demoGatewayName),
		manual.New(),
	)
	if cfg.StripeAPIKey != "" {
		registry.Register(stripe.NewStripeGateway(nil, cfg.StripeAPIKey, cfg.StripeBaseURL))
	}

	svc := orchestrator.NewService(st, registry, gateways, locker, hooks, logger)
	svc.SetNotifyURL(func(id string, op payment.Operation) string {
		return notifyURL(cfg.PublicBaseURL, id, op)
	})
	app, err := newApplication(svc, st, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Info("using in-memory payment store")
		return memory.New(), func() {}, nil
	}
	if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
		return nil, nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("using postgres payment store")
	return postgres.New(pool), pool.Close, nil
}

func openLocker(ctx context.Context, cfg config.Config, logger *zap.Logger) (orchestrator.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		return lock.NewKeyedMutex(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("using redis payment locks", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.LockTTL))
	return lock.NewRedisLocker(client, cfg.LockTTL, logger), func() { _ = client.Close() }, nil
}

// setupTracing installs a stdout exporter when tracing is enabled. The
// returned function flushes and stops the provider.
func setupTracing(cfg config.Config) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("deployment.environment", string(cfg.AppEnv)),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

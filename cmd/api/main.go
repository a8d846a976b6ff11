package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"studio-api/internal/config"
	"studio-api/internal/crm"
	"studio-api/internal/database"
	"studio-api/internal/logger"
	"studio-api/internal/mq"
	"studio-api/internal/notifier"
	"studio-api/internal/obs"
	"studio-api/internal/payment"
	"studio-api/internal/server"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, closers []io.Closer, shutdownTracer func(context.Context) error, log *zap.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	// In-flight requests get 30 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Error("Error closing integration", zap.Error(err))
		}
	}

	if err := apiServer.Close(); err != nil {
		log.Error("Error closing server resources", zap.Error(err))
	}

	if err := shutdownTracer(ctx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}

	log.Info("Server exiting")
	done <- true
}

func connectRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unavailable, slot locks and rate limiting are disabled",
			zap.String("addr", cfg.Addr()),
			zap.Error(err),
		)
		_ = client.Close()
		return nil
	}
	return client
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, cfg.Tracing.ServiceName)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting studio API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	shutdownTracer, err := obs.InitTracer(context.Background(), cfg.Tracing, cfg.Server.Env)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if err := database.RunMigrations(dbService.DB(), "migrations", log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	var closers []io.Closer

	deps := server.Dependencies{
		DB:       dbService,
		Redis:    connectRedis(cfg.Redis, log),
		Payments: payment.Disabled{},
		Deals:    crm.NewLogPublisher(log.Named("crm")),
	}

	if cfg.Stripe.SecretKey != "" {
		deps.Payments = payment.NewStripeProvider(cfg.Stripe)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, orders are placed without payment links")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := crm.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.CRMTopic)
		deps.Deals = publisher
		closers = append(closers, publisher)
	} else {
		log.Warn("KAFKA_BROKERS not set, CRM deals are only logged")
	}

	var jobs mq.JSONPublisher = mq.NewLogPublisher(log.Named("mq"))
	if cfg.RabbitMQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		jobs = publisher
		closers = append(closers, publisher)
	} else {
		log.Warn("RABBITMQ_URL not set, emails are only logged")
	}
	deps.Mailer = notifier.NewQueue(jobs)

	srv := server.NewServer(cfg, log, deps)

	done := make(chan bool, 1)
	go gracefulShutdown(srv, closers, shutdownTracer, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	<-done
	log.Info("Graceful shutdown complete")
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"studio-api/internal/config"
	"studio-api/internal/logger"
	"studio-api/internal/mq"
	"studio-api/internal/notifier"

	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env, "studio-notifier")
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	if cfg.RabbitMQ.URL == "" {
		log.Fatal("RABBITMQ_URL is required for the notifier")
	}

	var sender notifier.Sender = notifier.NewLogSender(log.Named("email"))
	if cfg.SMTP.Host != "" {
		sender = notifier.NewSMTPSender(cfg.SMTP)
	} else {
		log.Warn("SMTP_HOST not set, emails are only logged")
	}
	worker := notifier.NewWorker(sender, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumerCfg := mq.ConsumerConfig{
		URL:      cfg.RabbitMQ.URL,
		Exchange: cfg.RabbitMQ.Exchange,
		Queue:    cfg.RabbitMQ.Queue,
		Bindings: notifier.Bindings,
		DLXName:  cfg.RabbitMQ.DLX,
		DLXQueue: cfg.RabbitMQ.DLQ,
		Tag:      "studio-notifier",
	}

	backoff := minBackoff
	for ctx.Err() == nil {
		consumed := consume(ctx, consumerCfg, worker, log)
		if ctx.Err() != nil {
			break
		}
		if consumed {
			backoff = minBackoff
		}

		log.Warn("Notifier disconnected, retrying", zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	log.Info("Notifier exiting")
}

// consume runs one connection lifetime and reports whether it got as far as
// receiving deliveries.
func consume(ctx context.Context, cfg mq.ConsumerConfig, worker *notifier.Worker, log *zap.Logger) bool {
	consumer := mq.NewConsumer(cfg)
	if err := consumer.Connect(); err != nil {
		log.Error("Failed to connect to RabbitMQ", zap.Error(err))
		return false
	}
	defer consumer.Close()

	deliveries, err := consumer.Deliveries(ctx)
	if err != nil {
		log.Error("Failed to start consuming", zap.Error(err))
		return false
	}

	log.Info("Notifier consuming",
		zap.String("queue", cfg.Queue),
		zap.Strings("bindings", cfg.Bindings),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	closed := consumer.NotifyClose()
	go func() {
		select {
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				log.Error("RabbitMQ connection closed", zap.String("reason", amqpErr.Reason))
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := worker.Run(runCtx, deliveries); err != nil {
		log.Warn("Worker stopped", zap.Error(err))
	}
	return true
}

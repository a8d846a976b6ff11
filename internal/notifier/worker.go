package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrMalformedJob marks deliveries that can never succeed
var ErrMalformedJob = errors.New("malformed email job")

type Worker struct {
	sender Sender
	logger *zap.Logger
}

func NewWorker(sender Sender, logger *zap.Logger) *Worker {
	return &Worker{sender: sender, logger: logger}
}

// Process decodes, renders and sends one job body
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrMalformedJob)
	}

	msg, err := Render(job)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	return w.sender.Send(ctx, msg)
}

// Run consumes deliveries until ctx ends or the channel closes. Failed jobs
// are rejected without requeue so they land on the dead-letter queue.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := w.Process(ctx, d.Body); err != nil {
				w.logger.Error("Email job failed",
					zap.String("routing_key", d.RoutingKey),
					zap.Error(err),
				)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

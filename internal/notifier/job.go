// Package notifier renders and delivers transactional emails queued by the API.
package notifier

import (
	"context"
	"fmt"

	"studio-api/internal/mq"
)

// Templates double as routing keys on the jobs exchange
const (
	TemplateBookingRequested  = "booking.requested"
	TemplateBookingConfirmed  = "booking.confirmed"
	TemplateBookingCancelled  = "booking.cancelled"
	TemplateOrderPlaced       = "order.placed"
	TemplateEnrollmentCreated = "enrollment.created"
)

// Bindings are the routing keys the notifier queue consumes
var Bindings = []string{"booking.*", "order.*", "enrollment.*"}

// EmailJob is the payload published for every transactional email
type EmailJob struct {
	Template string            `json:"template"`
	To       string            `json:"to"`
	Name     string            `json:"name"`
	Data     map[string]string `json:"data"`
}

// Queue enqueues email jobs for the notifier worker
type Queue struct {
	publisher mq.JSONPublisher
}

func NewQueue(publisher mq.JSONPublisher) *Queue {
	return &Queue{publisher: publisher}
}

func (q *Queue) Enqueue(ctx context.Context, job EmailJob) error {
	if _, ok := templates[job.Template]; !ok {
		return fmt.Errorf("unknown email template %q", job.Template)
	}
	if err := q.publisher.PublishJSON(ctx, job.Template, job); err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", job.Template, err)
	}
	return nil
}

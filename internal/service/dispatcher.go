package service

import (
	"context"

	"studio-api/internal/crm"
	"studio-api/internal/domain"
	"studio-api/internal/notifier"

	"go.uber.org/zap"
)

// Mailer enqueues transactional emails
type Mailer interface {
	Enqueue(ctx context.Context, job notifier.EmailJob) error
}

// SyncRecorder stores the outcome of integration calls
type SyncRecorder interface {
	Success(ctx context.Context, provider, entityType, entityID, message string)
	Failure(ctx context.Context, provider, entityType, entityID string, err error)
	Inbound(ctx context.Context, provider, entityType, entityID, message string)
}

// Dispatcher fans committed changes out to email and the CRM. Every call is
// best-effort: failures land in the sync log and never reach the caller.
type Dispatcher struct {
	mailer Mailer
	deals  crm.Publisher
	sync   SyncRecorder
	logger *zap.Logger
}

func NewDispatcher(mailer Mailer, deals crm.Publisher, sync SyncRecorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{mailer: mailer, deals: deals, sync: sync, logger: logger}
}

func (d *Dispatcher) Email(ctx context.Context, entityType, entityID string, job notifier.EmailJob) {
	if job.To == "" {
		return
	}
	if err := d.mailer.Enqueue(ctx, job); err != nil {
		d.sync.Failure(ctx, domain.ProviderEmail, entityType, entityID, err)
		return
	}
	d.logger.Debug("Email queued", zap.String("template", job.Template), zap.String("entity_id", entityID))
}

func (d *Dispatcher) Deal(ctx context.Context, entityType, entityID string, deal crm.DealEvent) {
	if err := d.deals.PublishDeal(ctx, deal); err != nil {
		d.sync.Failure(ctx, domain.ProviderCRM, entityType, entityID, err)
		return
	}
	d.sync.Success(ctx, domain.ProviderCRM, entityType, entityID, deal.Title)
}

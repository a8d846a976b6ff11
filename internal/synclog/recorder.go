// Package synclog records the outcome of calls to external collaborators.
package synclog

import (
	"context"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder writes sync log rows; recording failures are only logged
type Recorder struct {
	repo   repository.SyncLogRepository
	logger *zap.Logger
}

func NewRecorder(repo repository.SyncLogRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Success(ctx context.Context, provider, entityType, entityID, message string) {
	r.record(ctx, "outbound", provider, domain.SyncSuccess, entityType, entityID, message)
}

func (r *Recorder) Failure(ctx context.Context, provider, entityType, entityID string, err error) {
	r.logger.Error("Integration call failed",
		zap.String("provider", provider),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.Error(err),
	)
	r.record(ctx, "outbound", provider, domain.SyncError, entityType, entityID, err.Error())
}

// Inbound records a webhook delivery
func (r *Recorder) Inbound(ctx context.Context, provider, entityType, entityID, message string) {
	r.record(ctx, "inbound", provider, domain.SyncSuccess, entityType, entityID, message)
}

func (r *Recorder) record(ctx context.Context, direction, provider, status, entityType, entityID, message string) {
	// detached so a cancelled request still leaves a trace
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	entry := &domain.SyncLog{
		ID:         uuid.New(),
		Provider:   provider,
		Direction:  direction,
		Status:     status,
		EntityType: entityType,
		EntityID:   entityID,
		Message:    message,
		CreatedAt:  time.Now(),
	}
	if err := r.repo.Insert(ctx, entry); err != nil {
		r.logger.Error("Failed to write sync log", zap.String("provider", provider), zap.Error(err))
	}
}

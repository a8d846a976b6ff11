package repository

import (
	"context"
	"database/sql"
	"fmt"

	"studio-api/internal/domain"
)

// SyncLogRepository stores the outcome of calls to external collaborators
type SyncLogRepository interface {
	Insert(ctx context.Context, entry *domain.SyncLog) error
	Recent(ctx context.Context, provider string, limit int) ([]*domain.SyncLog, error)
}

type syncLogRepository struct {
	db *sql.DB
}

func NewSyncLogRepository(db *sql.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Insert(ctx context.Context, e *domain.SyncLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, provider, direction, status, entity_type, entity_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Provider, e.Direction, e.Status, e.EntityType, e.EntityID, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

func (r *syncLogRepository) Recent(ctx context.Context, provider string, limit int) ([]*domain.SyncLog, error) {
	_, limit = normalizePage(1, limit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, provider, direction, status, entity_type, entity_id, message, created_at
		FROM sync_logs
		WHERE ($1 = '' OR provider = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	entries := []*domain.SyncLog{}
	for rows.Next() {
		e := &domain.SyncLog{}
		if err := rows.Scan(&e.ID, &e.Provider, &e.Direction, &e.Status, &e.EntityType, &e.EntityID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}
	return entries, nil
}

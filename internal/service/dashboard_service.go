package service

import (
	"context"
	"time"

	"studio-api/internal/domain"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	upcomingWindow    = 7 * 24 * time.Hour
	defaultLowStock   = 3
	maxSyncLogEntries = 200
)

// ClientNotesInput is the CRM annotation an admin keeps on a client
type ClientNotesInput struct {
	Notes string   `json:"notes" validate:"max=5000"`
	Tags  []string `json:"tags" validate:"max=20,dive,min=1,max=40"`
}

// DashboardService backs the admin overview and the client CRM
type DashboardService interface {
	Stats(ctx context.Context) (*domain.DashboardStats, error)
	ListClients(ctx context.Context, search string, page, pageSize int) ([]*domain.ClientSummary, int, error)
	UpdateClientNotes(ctx context.Context, clientID uuid.UUID, input ClientNotesInput) (*domain.User, error)
	RecentSyncLogs(ctx context.Context, provider string, limit int) ([]*domain.SyncLog, error)
}

type dashboardService struct {
	stats    repository.StatsRepository
	users    repository.UserRepository
	syncLogs repository.SyncLogRepository
	location *time.Location
	lowStock int
	now      func() time.Time
	logger   *zap.Logger
}

func NewDashboardService(stats repository.StatsRepository, users repository.UserRepository, syncLogs repository.SyncLogRepository, location *time.Location, lowStock int, logger *zap.Logger) DashboardService {
	if location == nil {
		location = time.UTC
	}
	if lowStock <= 0 {
		lowStock = defaultLowStock
	}
	return &dashboardService{
		stats:    stats,
		users:    users,
		syncLogs: syncLogs,
		location: location,
		lowStock: lowStock,
		now:      time.Now,
		logger:   logger,
	}
}

// statsWindow computes the reporting periods in the studio's time zone
func statsWindow(now time.Time, loc *time.Location, lowStock int) repository.StatsWindow {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return repository.StatsWindow{
		DayStart:      dayStart,
		DayEnd:        dayStart.AddDate(0, 0, 1),
		Now:           now,
		UpcomingUntil: now.Add(upcomingWindow),
		MonthStart:    time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc),
		LowStock:      lowStock,
	}
}

func (s *dashboardService) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	return s.stats.Dashboard(ctx, statsWindow(s.now(), s.location, s.lowStock))
}

func (s *dashboardService) ListClients(ctx context.Context, search string, page, pageSize int) ([]*domain.ClientSummary, int, error) {
	return s.users.ListClients(ctx, search, page, pageSize)
}

func (s *dashboardService) UpdateClientNotes(ctx context.Context, clientID uuid.UUID, input ClientNotesInput) (*domain.User, error) {
	if err := s.users.UpdateNotes(ctx, clientID, input.Notes, input.Tags); err != nil {
		return nil, err
	}
	s.logger.Info("Client notes updated", zap.String("client_id", clientID.String()), zap.Int("tags", len(input.Tags)))
	return s.users.FindByID(ctx, clientID)
}

func (s *dashboardService) RecentSyncLogs(ctx context.Context, provider string, limit int) ([]*domain.SyncLog, error) {
	if limit <= 0 || limit > maxSyncLogEntries {
		limit = maxSyncLogEntries
	}
	return s.syncLogs.Recent(ctx, provider, limit)
}

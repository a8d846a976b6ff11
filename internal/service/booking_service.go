package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"studio-api/internal/checkin"
	"studio-api/internal/crm"
	"studio-api/internal/domain"
	"studio-api/internal/lock"
	"studio-api/internal/notifier"
	"studio-api/internal/obs"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const displayTimeLayout = "Mon Jan 2, 3:04 PM"

// CreateBookingInput is a client's appointment request
type CreateBookingInput struct {
	ServiceID uuid.UUID `json:"service_id" validate:"required"`
	StaffID   uuid.UUID `json:"staff_id" validate:"required"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	Notes     string    `json:"notes" validate:"max=1000"`
}

// BookingService handles appointments
type BookingService interface {
	AvailableSlots(ctx context.Context, serviceID, staffID uuid.UUID, date time.Time) ([]time.Time, error)
	CreateBooking(ctx context.Context, clientID uuid.UUID, input CreateBookingInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (*domain.Booking, error)
	GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Booking, error)
	ListClientBookings(ctx context.Context, clientID uuid.UUID, upcomingOnly bool) ([]*domain.Booking, error)
	ListStaffSchedule(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]*domain.Booking, error)
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, int, error)
	CheckInURL(ctx context.Context, actor Actor, id uuid.UUID) (string, error)
	CheckIn(ctx context.Context, token string) (*domain.Booking, error)
}

// BookingServiceDeps groups the collaborators of the booking service
type BookingServiceDeps struct {
	Bookings   repository.BookingRepository
	Services   repository.ServiceRepository
	Users      repository.UserRepository
	Loyalty    LoyaltyService
	Locker     lock.Locker
	Signer     *checkin.Signer
	Dispatcher *Dispatcher
	Rules      SlotRules
	LockTTL    time.Duration
	PublicURL  string
	Now        func() time.Time
	Logger     *zap.Logger
}

type bookingService struct {
	BookingServiceDeps
}

func NewBookingService(deps BookingServiceDeps) BookingService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 10 * time.Second
	}
	return &bookingService{BookingServiceDeps: deps}
}

const schedulePageSize = 100

var errSlotUnavailable = &BusinessError{Message: "the selected time is no longer available"}

func (s *bookingService) AvailableSlots(ctx context.Context, serviceID, staffID uuid.UUID, date time.Time) ([]time.Time, error) {
	svc, err := s.Services.FindByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return []time.Time{}, nil
	}
	staff, err := s.staffMember(ctx, staffID)
	if err != nil {
		return nil, err
	}
	return s.slotsFor(ctx, svc, staff.ID, date)
}

// staffMember loads a user who can take appointments
func (s *bookingService) staffMember(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	staff, err := s.Users.FindByID(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	if staff == nil || !staff.IsStaff() {
		return nil, businessErrorf("the selected artist is not available")
	}
	return staff, nil
}

func (s *bookingService) slotsFor(ctx context.Context, svc *domain.Service, staffID uuid.UUID, date time.Time) ([]time.Time, error) {
	open, closing := s.Rules.DayBounds(date)
	busy, err := s.Bookings.BusyIntervals(ctx, staffID, open, closing)
	if err != nil {
		return nil, err
	}
	return ComputeSlots(s.Rules, date, svc.Duration(), busy, s.Now()), nil
}

func (s *bookingService) CreateBooking(ctx context.Context, clientID uuid.UUID, input CreateBookingInput) (*domain.Booking, error) {
	ctx, span := obs.Start(ctx, "BookingService.CreateBooking")
	defer span.End()
	span.SetAttributes(
		attribute.String("service_id", input.ServiceID.String()),
		attribute.String("staff_id", input.StaffID.String()),
	)

	svc, err := s.Services.FindByID(ctx, input.ServiceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return nil, businessErrorf("this service is not available")
		}
		return nil, err
	}
	if !svc.Active {
		return nil, businessErrorf("%s is not currently bookable", svc.Name)
	}

	staff, err := s.staffMember(ctx, input.StaffID)
	if err != nil {
		return nil, err
	}

	start := input.StartsAt.In(s.Rules.Location)
	lockKey := fmt.Sprintf("booking:%s:%s", staff.ID, start.Format("2006-01-02"))
	release, err := s.Locker.Acquire(ctx, lockKey, s.LockTTL)
	if errors.Is(err, lock.ErrLockHeld) {
		s.Logger.Debug("Booking lock contended", zap.String("key", lockKey))
		return nil, businessErrorf("someone else is booking this time right now, please try again")
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Logger.Warn("Failed to release booking lock", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	slots, err := s.slotsFor(ctx, svc, staff.ID, start)
	if err != nil {
		return nil, err
	}
	if !containsSlot(slots, start) {
		return nil, errSlotUnavailable
	}

	now := s.Now()
	booking := &domain.Booking{
		ID:              uuid.New(),
		ClientID:        clientID,
		StaffID:         staff.ID,
		ServiceID:       svc.ID,
		StartsAt:        start.UTC(),
		DurationMinutes: svc.DurationMinutes,
		Status:          domain.BookingPending,
		TotalCents:      svc.PriceCents,
		DepositCents:    svc.DepositCents,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.Bookings.CreateWithNoOverlap(ctx, booking); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, errSlotUnavailable
		}
		return nil, err
	}

	s.Logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.Time("starts_at", booking.StartsAt),
	)

	if client, err := s.Users.FindByID(ctx, clientID); err == nil {
		s.Dispatcher.Email(ctx, "booking", booking.ID.String(), s.bookingEmail(notifier.TemplateBookingRequested, client, svc, booking, nil))
		s.Dispatcher.Deal(ctx, "booking", booking.ID.String(), crm.DealEvent{
			Kind:       crm.DealBooking,
			ClientID:   client.ID.String(),
			Email:      client.Email,
			Name:       client.FullName(),
			Title:      svc.Name,
			ValueCents: booking.TotalCents,
			Reference:  booking.ID.String(),
		})
	}

	return booking, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*domain.Booking, error) {
	booking, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(domain.BookingCancelled) {
		return nil, businessErrorf("a %s booking cannot be cancelled", booking.Status)
	}

	now := s.Now()
	if err := s.Bookings.Cancel(ctx, booking.ID, booking.Status, reason, now); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, businessErrorf("this booking was just updated, please refresh and try again")
		}
		return nil, err
	}
	booking.Status = domain.BookingCancelled
	booking.CancellationReason = reason
	booking.CancelledAt = &now

	s.Logger.Info("Booking cancelled", zap.String("booking_id", booking.ID.String()), zap.String("by", actor.ID.String()))
	s.notifyStatus(ctx, booking, notifier.TemplateBookingCancelled, map[string]string{"reason": reason})
	return booking, nil
}

func (s *bookingService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, businessErrorf("unknown booking status %q", status)
	}

	booking, err := s.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == domain.BookingCancelled {
		return s.CancelBooking(ctx, Actor{Role: domain.RoleAdmin}, id, "")
	}
	if status == domain.BookingCompleted && booking.Status == domain.BookingCompleted {
		// completing again re-applies an award that failed the first time
		if err := s.awardCompletion(ctx, booking); err != nil {
			return nil, err
		}
		return booking, nil
	}
	if !booking.Status.CanTransitionTo(status) {
		return nil, businessErrorf("cannot move a booking from %s to %s", booking.Status, status)
	}

	if err := s.Bookings.UpdateStatus(ctx, id, booking.Status, status); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, businessErrorf("this booking was just updated, please refresh and try again")
		}
		return nil, err
	}
	booking.Status = status
	booking.UpdatedAt = s.Now()

	s.Logger.Info("Booking status updated", zap.String("booking_id", id.String()), zap.String("status", string(status)))

	switch status {
	case domain.BookingCompleted:
		if err := s.awardCompletion(ctx, booking); err != nil {
			return nil, err
		}
	case domain.BookingConfirmed:
		s.notifyStatus(ctx, booking, notifier.TemplateBookingConfirmed, map[string]string{
			"checkin_url": s.checkInURL(booking.ID),
		})
	}

	return booking, nil
}

func (s *bookingService) awardCompletion(ctx context.Context, booking *domain.Booking) error {
	points := domain.PointsForCents(booking.TotalCents)
	if _, err := s.Loyalty.Award(ctx, booking.ClientID, points, domain.LoyaltyBookingCompleted, booking.ID.String(), "Completed appointment"); err != nil {
		s.Logger.Error("Failed to award booking points", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		return fmt.Errorf("booking completed but points were not awarded, retry to apply them: %w", err)
	}
	return nil
}

// GetBooking returns a booking visible to the actor: clients only see their own
func (s *bookingService) GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Booking, error) {
	booking, err := s.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && booking.ClientID != actor.ID {
		return nil, repository.ErrBookingNotFound
	}
	return booking, nil
}

func (s *bookingService) ListClientBookings(ctx context.Context, clientID uuid.UUID, upcomingOnly bool) ([]*domain.Booking, error) {
	var after *time.Time
	if upcomingOnly {
		now := s.Now()
		after = &now
	}
	return s.Bookings.ListByClient(ctx, clientID, after)
}

func (s *bookingService) ListStaffSchedule(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]*domain.Booking, error) {
	if !to.After(from) {
		return nil, businessErrorf("the schedule range must end after it starts")
	}
	filter := domain.BookingFilter{
		StaffID:  &staffID,
		From:     &from,
		To:       &to,
		Page:     1,
		PageSize: schedulePageSize,
	}
	schedule := []*domain.Booking{}
	for {
		page, total, err := s.Bookings.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		schedule = append(schedule, page...)
		if len(page) == 0 || len(schedule) >= total {
			return schedule, nil
		}
		filter.Page++
	}
}

func (s *bookingService) ListBookings(ctx context.Context, filter domain.BookingFilter) ([]*domain.Booking, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, businessErrorf("unknown booking status %q", *filter.Status)
	}
	return s.Bookings.List(ctx, filter)
}

func (s *bookingService) CheckInURL(ctx context.Context, actor Actor, id uuid.UUID) (string, error) {
	booking, err := s.GetBooking(ctx, actor, id)
	if err != nil {
		return "", err
	}
	if booking.Status != domain.BookingPending && booking.Status != domain.BookingConfirmed {
		return "", businessErrorf("a %s booking has no check-in code", booking.Status)
	}
	return s.checkInURL(booking.ID), nil
}

// CheckIn starts the appointment identified by a scanned check-in token
func (s *bookingService) CheckIn(ctx context.Context, token string) (*domain.Booking, error) {
	id, err := s.Signer.Verify(token)
	if err != nil {
		return nil, businessErrorf("this check-in code is not valid")
	}
	booking, err := s.Bookings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != domain.BookingConfirmed {
		return nil, businessErrorf("only confirmed bookings can be checked in (this one is %s)", booking.Status)
	}
	return s.UpdateStatus(ctx, id, domain.BookingInProgress)
}

func (s *bookingService) checkInURL(id uuid.UUID) string {
	return s.PublicURL + "/checkin?token=" + url.QueryEscape(s.Signer.Token(id))
}

func (s *bookingService) notifyStatus(ctx context.Context, booking *domain.Booking, template string, extra map[string]string) {
	client, err := s.Users.FindByID(ctx, booking.ClientID)
	if err != nil {
		s.Logger.Warn("Skipping booking email", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		return
	}
	svc, err := s.Services.FindByID(ctx, booking.ServiceID)
	if err != nil {
		s.Logger.Warn("Skipping booking email", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		return
	}
	s.Dispatcher.Email(ctx, "booking", booking.ID.String(), s.bookingEmail(template, client, svc, booking, extra))
}

func (s *bookingService) bookingEmail(template string, client *domain.User, svc *domain.Service, booking *domain.Booking, extra map[string]string) notifier.EmailJob {
	data := map[string]string{
		"service":   svc.Name,
		"starts_at": booking.StartsAt.In(s.Rules.Location).Format(displayTimeLayout),
	}
	for k, v := range extra {
		data[k] = v
	}
	return notifier.EmailJob{Template: template, To: client.Email, Name: client.FirstName, Data: data}
}

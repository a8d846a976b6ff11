package service

import (
	"context"
	"testing"

	"studio-api/internal/domain"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockTrainingRepository struct {
	programs    map[uuid.UUID]*domain.TrainingProgram
	enrollments map[uuid.UUID]*domain.Enrollment
}

func newMockTrainingRepository() *mockTrainingRepository {
	return &mockTrainingRepository{
		programs:    make(map[uuid.UUID]*domain.TrainingProgram),
		enrollments: make(map[uuid.UUID]*domain.Enrollment),
	}
}

func (m *mockTrainingRepository) CreateProgram(ctx context.Context, p *domain.TrainingProgram) error {
	for _, existing := range m.programs {
		if existing.Slug == p.Slug {
			return repository.ErrProgramAlreadyExists
		}
	}
	m.programs[p.ID] = p
	return nil
}

func (m *mockTrainingRepository) FindProgram(ctx context.Context, id uuid.UUID) (*domain.TrainingProgram, error) {
	p, ok := m.programs[id]
	if !ok {
		return nil, repository.ErrProgramNotFound
	}
	return p, nil
}

func (m *mockTrainingRepository) ListPrograms(ctx context.Context, publishedOnly bool) ([]*domain.TrainingProgram, error) {
	out := []*domain.TrainingProgram{}
	for _, p := range m.programs {
		if !publishedOnly || p.Published {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockTrainingRepository) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	program, ok := m.programs[e.ProgramID]
	if !ok {
		return repository.ErrProgramNotFound
	}
	held := 0
	for _, existing := range m.enrollments {
		if existing.ProgramID != e.ProgramID {
			continue
		}
		if existing.ClientID == e.ClientID && existing.Status != domain.EnrollmentWithdrawn && existing.Status != domain.EnrollmentCompleted {
			return repository.ErrAlreadyEnrolled
		}
		if existing.Status.HoldsSeat() {
			held++
		}
	}
	e.Status = domain.EnrollmentEnrolled
	if held >= program.Capacity {
		e.Status = domain.EnrollmentWaitlisted
	}
	copied := *e
	m.enrollments[e.ID] = &copied
	return nil
}

func (m *mockTrainingRepository) FindEnrollment(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, repository.ErrEnrollmentNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockTrainingRepository) RecordSession(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok || (e.Status != domain.EnrollmentEnrolled && e.Status != domain.EnrollmentInProgress) {
		return nil, repository.ErrEnrollmentNotFound
	}
	e.SessionsCompleted++
	e.Status = domain.EnrollmentInProgress
	if e.SessionsCompleted >= m.programs[e.ProgramID].Sessions {
		e.Status = domain.EnrollmentCompleted
	}
	copied := *e
	return &copied, nil
}

func (m *mockTrainingRepository) UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus) error {
	e, ok := m.enrollments[id]
	if !ok {
		return repository.ErrEnrollmentNotFound
	}
	e.Status = status
	return nil
}

func (m *mockTrainingRepository) ListEnrollmentsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Enrollment, error) {
	out := []*domain.Enrollment{}
	for _, e := range m.enrollments {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockTrainingRepository) ListEnrollmentsByProgram(ctx context.Context, programID uuid.UUID) ([]*domain.Enrollment, error) {
	out := []*domain.Enrollment{}
	for _, e := range m.enrollments {
		if e.ProgramID == programID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestEnrollFillsSeatsThenWaitlists(t *testing.T) {
	repo := newMockTrainingRepository()
	users := newMockUserRepository()
	in := newIntegrations()
	svc := NewTrainingService(repo, users, in.dispatcher, zap.NewNop())
	ctx := context.Background()

	program, err := svc.CreateProgram(ctx, ProgramInput{Name: "Lash Artist Certification", Sessions: 2, Capacity: 1, Published: true, PriceCents: 120000})
	require.NoError(t, err)
	assert.Equal(t, "lash-artist-certification", program.Slug)

	first := users.add(domain.RoleClient)
	second := users.add(domain.RoleClient)

	e1, err := svc.Enroll(ctx, first.ID, program.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentEnrolled, e1.Status)

	e2, err := svc.Enroll(ctx, second.ID, program.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentWaitlisted, e2.Status)

	_, err = svc.Enroll(ctx, first.ID, program.ID)
	assert.Equal(t, "you are already registered for Lash Artist Certification", businessMessage(t, err))

	assert.Equal(t, []string{"enrollment.created", "enrollment.created"}, in.mailer.templates())
	assert.Len(t, in.deals.deals, 2)
}

func TestRecordSessionCompletesProgram(t *testing.T) {
	repo := newMockTrainingRepository()
	users := newMockUserRepository()
	svc := NewTrainingService(repo, users, newIntegrations().dispatcher, zap.NewNop())
	ctx := context.Background()

	program, err := svc.CreateProgram(ctx, ProgramInput{Name: "Brow Mapping", Sessions: 2, Capacity: 4, Published: true})
	require.NoError(t, err)
	client := users.add(domain.RoleClient)
	enrollment, err := svc.Enroll(ctx, client.ID, program.ID)
	require.NoError(t, err)

	progress, err := svc.RecordSession(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentInProgress, progress.Status)

	done, err := svc.RecordSession(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCompleted, done.Status)
	assert.Equal(t, 2, done.SessionsCompleted)

	_, err = svc.RecordSession(ctx, enrollment.ID)
	assert.Equal(t, "sessions can only be recorded for active enrollments", businessMessage(t, err))

	_, err = svc.Withdraw(ctx, Actor{ID: client.ID, Role: domain.RoleClient}, enrollment.ID)
	assert.Equal(t, "a completed enrollment cannot be withdrawn", businessMessage(t, err))
}

func TestEnrollRequiresPublishedProgramAndWithdrawOwnership(t *testing.T) {
	repo := newMockTrainingRepository()
	users := newMockUserRepository()
	svc := NewTrainingService(repo, users, newIntegrations().dispatcher, zap.NewNop())
	ctx := context.Background()

	draft, err := svc.CreateProgram(ctx, ProgramInput{Name: "Henna Basics", Sessions: 1, Capacity: 3})
	require.NoError(t, err)
	client := users.add(domain.RoleClient)

	_, err = svc.Enroll(ctx, client.ID, draft.ID)
	assert.Equal(t, "Henna Basics is not open for enrollment", businessMessage(t, err))

	open, err := svc.CreateProgram(ctx, ProgramInput{Name: "Henna Advanced", Sessions: 1, Capacity: 3, Published: true})
	require.NoError(t, err)
	enrollment, err := svc.Enroll(ctx, client.ID, open.ID)
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, Actor{ID: uuid.New(), Role: domain.RoleClient}, enrollment.ID)
	assert.ErrorIs(t, err, repository.ErrEnrollmentNotFound)

	withdrawn, err := svc.Withdraw(ctx, Actor{ID: client.ID, Role: domain.RoleClient}, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentWithdrawn, withdrawn.Status)

	programs, err := svc.ListPrograms(ctx, false)
	require.NoError(t, err)
	assert.Len(t, programs, 1)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studio-api/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProgramNotFound      = errors.New("training program not found")
	ErrProgramAlreadyExists = errors.New("training program with this slug already exists")
	ErrEnrollmentNotFound   = errors.New("enrollment not found")
	ErrAlreadyEnrolled      = errors.New("client already has an active enrollment in this program")
)

// TrainingRepository defines data access for programs and enrollments
type TrainingRepository interface {
	CreateProgram(ctx context.Context, program *domain.TrainingProgram) error
	FindProgram(ctx context.Context, id uuid.UUID) (*domain.TrainingProgram, error)
	ListPrograms(ctx context.Context, publishedOnly bool) ([]*domain.TrainingProgram, error)

	CreateEnrollment(ctx context.Context, enrollment *domain.Enrollment) error
	FindEnrollment(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)
	RecordSession(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error)
	UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus) error
	ListEnrollmentsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Enrollment, error)
	ListEnrollmentsByProgram(ctx context.Context, programID uuid.UUID) ([]*domain.Enrollment, error)
}

type trainingRepository struct {
	db *sql.DB
}

func NewTrainingRepository(db *sql.DB) TrainingRepository {
	return &trainingRepository{db: db}
}

const programColumns = `id, name, slug, description, price_cents, sessions, capacity, published, starts_on, created_at, updated_at`

const enrollmentColumns = `id, client_id, program_id, status, sessions_completed, created_at, updated_at`

func scanProgram(row interface{ Scan(...any) error }, p *domain.TrainingProgram) error {
	var startsOn sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.PriceCents,
		&p.Sessions,
		&p.Capacity,
		&p.Published,
		&startsOn,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if startsOn.Valid {
		t := startsOn.Time
		p.StartsOn = &t
	}
	return nil
}

func scanEnrollment(row interface{ Scan(...any) error }, e *domain.Enrollment) error {
	return row.Scan(&e.ID, &e.ClientID, &e.ProgramID, &e.Status, &e.SessionsCompleted, &e.CreatedAt, &e.UpdatedAt)
}

func (r *trainingRepository) CreateProgram(ctx context.Context, p *domain.TrainingProgram) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_programs (`+programColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.Name, p.Slug, p.Description, p.PriceCents, p.Sessions, p.Capacity, p.Published, p.StartsOn, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "training_programs_slug_key") {
			return ErrProgramAlreadyExists
		}
		return fmt.Errorf("failed to create training program: %w", err)
	}
	return nil
}

func (r *trainingRepository) FindProgram(ctx context.Context, id uuid.UUID) (*domain.TrainingProgram, error) {
	p := &domain.TrainingProgram{}
	err := scanProgram(r.db.QueryRowContext(ctx, `SELECT `+programColumns+` FROM training_programs WHERE id = $1`, id), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProgramNotFound
		}
		return nil, fmt.Errorf("failed to find training program: %w", err)
	}
	return p, nil
}

func (r *trainingRepository) ListPrograms(ctx context.Context, publishedOnly bool) ([]*domain.TrainingProgram, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+programColumns+`
		FROM training_programs
		WHERE (NOT $1 OR published)
		ORDER BY starts_on ASC NULLS LAST, name ASC
	`, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list training programs: %w", err)
	}
	defer rows.Close()

	programs := []*domain.TrainingProgram{}
	for rows.Next() {
		p := &domain.TrainingProgram{}
		if err := scanProgram(rows, p); err != nil {
			return nil, fmt.Errorf("failed to scan training program: %w", err)
		}
		programs = append(programs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating training programs: %w", err)
	}
	return programs, nil
}

// CreateEnrollment locks the program row, counts held seats and inserts the
// enrollment as enrolled, or waitlisted when the program is full. The chosen
// status is written back to e.Status.
func (r *trainingRepository) CreateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin enrollment: %w", err)
	}
	defer tx.Rollback()

	var capacity int
	err = tx.QueryRowContext(ctx, `SELECT capacity FROM training_programs WHERE id = $1 FOR UPDATE`, e.ProgramID).Scan(&capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProgramNotFound
		}
		return fmt.Errorf("failed to lock training program: %w", err)
	}

	var held int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments
		WHERE program_id = $1 AND status IN ('enrolled', 'in_progress', 'completed')
	`, e.ProgramID).Scan(&held)
	if err != nil {
		return fmt.Errorf("failed to count program seats: %w", err)
	}

	e.Status = domain.EnrollmentEnrolled
	if held >= capacity {
		e.Status = domain.EnrollmentWaitlisted
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ClientID, e.ProgramID, e.Status, e.SessionsCompleted, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "uq_enrollments_active") {
			return ErrAlreadyEnrolled
		}
		return fmt.Errorf("failed to create enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit enrollment: %w", err)
	}
	return nil
}

func (r *trainingRepository) FindEnrollment(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := scanEnrollment(r.db.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id), e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to find enrollment: %w", err)
	}
	return e, nil
}

// RecordSession counts one attended session; the enrollment completes once it
// reaches the program's session count.
func (r *trainingRepository) RecordSession(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := scanEnrollment(r.db.QueryRowContext(ctx, `
		UPDATE enrollments e
		SET sessions_completed = e.sessions_completed + 1,
		    status = CASE WHEN e.sessions_completed + 1 >= p.sessions THEN 'completed' ELSE 'in_progress' END,
		    updated_at = NOW()
		FROM training_programs p
		WHERE e.id = $1 AND p.id = e.program_id AND e.status IN ('enrolled', 'in_progress')
		RETURNING e.id, e.client_id, e.program_id, e.status, e.sessions_completed, e.created_at, e.updated_at
	`, id), e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	return e, nil
}

func (r *trainingRepository) UpdateEnrollmentStatus(ctx context.Context, id uuid.UUID, status domain.EnrollmentStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		if isUniqueViolation(err, "uq_enrollments_active") {
			return ErrAlreadyEnrolled
		}
		return fmt.Errorf("failed to update enrollment status: %w", err)
	}
	return expectRows(result, ErrEnrollmentNotFound)
}

func (r *trainingRepository) ListEnrollmentsByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Enrollment, error) {
	return r.listEnrollments(ctx, "client_id = $1", clientID)
}

func (r *trainingRepository) ListEnrollmentsByProgram(ctx context.Context, programID uuid.UUID) ([]*domain.Enrollment, error) {
	return r.listEnrollments(ctx, "program_id = $1", programID)
}

func (r *trainingRepository) listEnrollments(ctx context.Context, where string, arg uuid.UUID) ([]*domain.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE `+where+` ORDER BY created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []*domain.Enrollment{}
	for rows.Next() {
		e := &domain.Enrollment{}
		if err := scanEnrollment(rows, e); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}
	return enrollments, nil
}

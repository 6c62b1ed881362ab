package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/DigitalPass/internal/models"
)

const selectApplication = `
		SELECT id, user_id, full_name, mobile, email, photo,
		       college_name, branch, college_location,
		       from_address, to_address, duration,
		       status, applied_at, payment_date, pass_number
		  FROM applications`

// PostgresApplicationRepository implements pass application persistence against PostgreSQL.
type PostgresApplicationRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresApplicationRepository creates a PostgresApplicationRepository using the provided *sql.DB.
func NewPostgresApplicationRepository(db *sql.DB) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{DB: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (models.PassApplication, error) {
	var (
		app         models.PassApplication
		status      string
		paymentDate sql.NullTime
		passNumber  sql.NullString
	)
	err := row.Scan(
		&app.ApplicationID, &app.UserID,
		&app.Personal.FullName, &app.Personal.Mobile, &app.Personal.Email, &app.Personal.Photo,
		&app.Education.CollegeName, &app.Education.Branch, &app.Education.CollegeLocation,
		&app.Travel.FromAddress, &app.Travel.ToAddress, &app.Travel.Duration,
		&status, &app.AppliedAt, &paymentDate, &passNumber,
	)
	if err != nil {
		return models.PassApplication{}, err
	}
	app.Status = models.Status(status)
	if paymentDate.Valid {
		t := paymentDate.Time
		app.PaymentDate = &t
	}
	app.PassNumber = passNumber.String
	return app, nil
}

// CreateApplication stores a new pending application.
// A second pending application for the same user yields models.ErrPendingExists.
func (s *PostgresApplicationRepository) CreateApplication(ctx context.Context, app models.PassApplication) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO applications (id, user_id, full_name, mobile, email, photo,
			college_name, branch, college_location, from_address, to_address, duration,
			status, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, app.ApplicationID, app.UserID,
		app.Personal.FullName, app.Personal.Mobile, app.Personal.Email, app.Personal.Photo,
		app.Education.CollegeName, app.Education.Branch, app.Education.CollegeLocation,
		app.Travel.FromAddress, app.Travel.ToAddress, int(app.Travel.Duration),
		string(models.StatusPending), app.AppliedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == pendingIndex {
			return models.ErrPendingExists
		}
		return fmt.Errorf("%w: duplicate application id", models.ErrStateViolation)
	}
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// GetApplication fetches a single application by id.
func (s *PostgresApplicationRepository) GetApplication(ctx context.Context, id string) (models.PassApplication, error) {
	app, err := scanApplication(s.DB.QueryRowContext(ctx, selectApplication+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PassApplication{}, models.ErrNotFound
	}
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("GetApplication: %w", err)
	}
	return app, nil
}

// ListApplications returns every application of the user, oldest first.
func (s *PostgresApplicationRepository) ListApplications(ctx context.Context, userID string) ([]models.PassApplication, error) {
	rows, err := s.DB.QueryContext(ctx, selectApplication+` WHERE user_id = $1 ORDER BY applied_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListApplications: %w", err)
	}
	defer rows.Close()

	var apps []models.PassApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListApplications: %w", err)
	}
	return apps, nil
}

// FindPending returns the user's application awaiting payment. At most one
// exists per user; models.ErrNotFound is returned when there is none.
func (s *PostgresApplicationRepository) FindPending(ctx context.Context, userID string) (models.PassApplication, error) {
	app, err := scanApplication(s.DB.QueryRowContext(ctx, selectApplication+`
		 WHERE user_id = $1 AND status = 'pending'`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PassApplication{}, models.ErrNotFound
	}
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("FindPending: %w", err)
	}
	return app, nil
}

// FindActivePass returns the user's approved application whose validity
// window is still open at now.
func (s *PostgresApplicationRepository) FindActivePass(ctx context.Context, userID string, now time.Time) (models.PassApplication, error) {
	app, err := scanApplication(s.DB.QueryRowContext(ctx, selectApplication+`
		 WHERE user_id = $1 AND status = 'approved'
		   AND payment_date + make_interval(months => duration) > $2
		 ORDER BY payment_date DESC LIMIT 1`, userID, now))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PassApplication{}, models.ErrNotFound
	}
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("FindActivePass: %w", err)
	}
	return app, nil
}

// Approve atomically moves a pending application to approved, attaching the
// payment date and pass number. Nothing is written unless every check passes.
func (s *PostgresApplicationRepository) Approve(ctx context.Context, id string, paidAt time.Time, passNumber string) (models.PassApplication, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	app, err := scanApplication(tx.QueryRowContext(ctx, selectApplication+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PassApplication{}, models.ErrNotFound
	}
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("lock application: %w", err)
	}
	if app.Status != models.StatusPending {
		return models.PassApplication{}, models.ErrNotPending
	}

	var active bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM applications
		 WHERE user_id = $1 AND id <> $2 AND status = 'approved'
		   AND payment_date + make_interval(months => duration) > $3)
	`, app.UserID, id, paidAt).Scan(&active)
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("check active pass: %w", err)
	}
	if active {
		return models.PassApplication{}, models.ErrActivePassExists
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE applications SET status = 'approved', payment_date = $2, pass_number = $3
		 WHERE id = $1 AND status = 'pending'
	`, id, paidAt, passNumber)
	if constraint, ok := uniqueViolation(err); ok && constraint == passNumberUnique {
		return models.PassApplication{}, models.ErrPassNumberTaken
	}
	if err != nil {
		return models.PassApplication{}, fmt.Errorf("approve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.PassApplication{}, fmt.Errorf("commit: %w", err)
	}

	app.Status = models.StatusApproved
	app.PaymentDate = &paidAt
	app.PassNumber = passNumber
	return app, nil
}

// PurgeAbandoned deletes pending applications committed before cutoff.
// Approved applications are never removed.
func (s *PostgresApplicationRepository) PurgeAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM applications
		 WHERE status = 'pending'
		   AND applied_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge abandoned: %w", err)
	}
	return res.RowsAffected()
}

// DeletePending removes the user's pending application id. Approved
// applications are never removed; models.ErrNotFound is returned when no
// pending application matched.
func (s *PostgresApplicationRepository) DeletePending(ctx context.Context, userID, id string) error {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM applications
		 WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// PostgresStore persists applications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id domain.ApplicationID) (Application, error) {
	var app Application
	var status string
	var assessorID, certificateURL sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, student_id, certification_id, assessor_id, overall_status,
		       current_step, certificate_url, archived, created_at, updated_at
		FROM applications WHERE id = $1
	`, uuid.UUID(id)).Scan(
		(*uuid.UUID)(&app.ID),
		(*uuid.UUID)(&app.StudentID),
		(*uuid.UUID)(&app.CertificationID),
		&assessorID,
		&status,
		&app.CurrentStep,
		&certificateURL,
		&app.Archived,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, sentinel.ErrNotFound
		}
		return Application{}, fmt.Errorf("get application: %w", err)
	}

	app.OverallStatus, err = domain.ParseOverallStatus(status)
	if err != nil {
		return Application{}, fmt.Errorf("application %s: %w", id, err)
	}
	if assessorID.Valid {
		u, err := uuid.Parse(assessorID.String)
		if err != nil {
			return Application{}, fmt.Errorf("application %s assessor: %w", id, err)
		}
		app.AssessorID = domain.UserID(u)
	}
	if certificateURL.Valid {
		app.CertificateURL = certificateURL.String
	}
	return app, nil
}

func (s *PostgresStore) Save(ctx context.Context, app Application) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications
			(id, student_id, certification_id, assessor_id, overall_status,
			 current_step, certificate_url, archived, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '00000000-0000-0000-0000-000000000000')::uuid,
		        $5, $6, NULLIF($7, ''), $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			assessor_id = EXCLUDED.assessor_id,
			overall_status = EXCLUDED.overall_status,
			current_step = EXCLUDED.current_step,
			certificate_url = EXCLUDED.certificate_url,
			archived = EXCLUDED.archived,
			updated_at = EXCLUDED.updated_at
	`,
		uuid.UUID(app.ID),
		uuid.UUID(app.StudentID),
		uuid.UUID(app.CertificationID),
		uuid.UUID(app.AssessorID).String(),
		app.OverallStatus.String(),
		app.CurrentStep,
		app.CertificateURL,
		app.Archived,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save application: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id domain.ApplicationID, step int, status domain.OverallStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET current_step = $2, overall_status = $3, updated_at = NOW()
		WHERE id = $1
	`, uuid.UUID(id), step, status.String())
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Archive(ctx context.Context, id domain.ApplicationID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET archived = TRUE, updated_at = NOW() WHERE id = $1
	`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("archive application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

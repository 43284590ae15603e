package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
	platformtx "certflow/pkg/platform/tx"
)

// PostgresStore persists form submissions with version history. The
// form_submissions table holds the latest row per (application, template);
// superseded versions move to form_submission_versions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const submissionColumns = `id, application_id, template_id, filled_by, status, assessed, form_data, version, submitted_at, updated_at`

func scanSubmission(row interface{ Scan(...any) error }) (Submission, error) {
	var sub Submission
	var filledBy, status, assessed string
	var formData []byte
	err := row.Scan(
		(*uuid.UUID)(&sub.ID),
		(*uuid.UUID)(&sub.ApplicationID),
		(*uuid.UUID)(&sub.TemplateID),
		&filledBy,
		&status,
		&assessed,
		&formData,
		&sub.Version,
		&sub.SubmittedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return Submission{}, err
	}
	sub.FilledBy = domain.FilledBy(filledBy)
	sub.Status = domain.SubmissionStatus(status)
	sub.Assessed = domain.AssessmentOutcome(assessed)
	if len(formData) > 0 {
		if err := json.Unmarshal(formData, &sub.FormData); err != nil {
			return Submission{}, fmt.Errorf("decode form data: %w", err)
		}
	}
	return sub, nil
}

func (s *PostgresStore) Get(ctx context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) (Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM form_submissions
		WHERE application_id = $1 AND template_id = $2
	`, uuid.UUID(appID), uuid.UUID(templateID))
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, sentinel.ErrNotFound
		}
		return Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// Save writes the latest submission row. It joins a transaction carried in
// ctx when the caller supplies one, otherwise it runs in its own.
func (s *PostgresStore) Save(ctx context.Context, sub Submission) error {
	tx, joined := platformtx.From(ctx)
	if !joined {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin save submission: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM form_submissions
		WHERE application_id = $1 AND template_id = $2
		FOR UPDATE
	`, uuid.UUID(sub.ApplicationID), uuid.UUID(sub.TemplateID))
	prev, err := scanSubmission(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if sub.Version == 0 {
			sub.Version = 1
		}
	case err != nil:
		return fmt.Errorf("load previous submission: %w", err)
	default:
		sub.Version = prev.Version
		if prev.Assessed == domain.AssessmentRequiresChanges {
			if err := archiveVersion(ctx, tx, prev); err != nil {
				return err
			}
			sub.Version = prev.Version + 1
		}
	}

	formData, err := json.Marshal(sub.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO form_submissions
			(id, application_id, template_id, filled_by, status, assessed, form_data, version, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (application_id, template_id) DO UPDATE SET
			filled_by = EXCLUDED.filled_by,
			status = EXCLUDED.status,
			assessed = EXCLUDED.assessed,
			form_data = EXCLUDED.form_data,
			version = EXCLUDED.version,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = NOW()
	`,
		uuid.UUID(sub.ID),
		uuid.UUID(sub.ApplicationID),
		uuid.UUID(sub.TemplateID),
		sub.FilledBy.String(),
		sub.Status.String(),
		sub.Assessed.String(),
		formData,
		sub.Version,
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	if joined {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save submission: %w", err)
	}
	return nil
}

func archiveVersion(ctx context.Context, tx *sql.Tx, prev Submission) error {
	formData, err := json.Marshal(prev.FormData)
	if err != nil {
		return fmt.Errorf("encode archived form data: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO form_submission_versions
			(submission_id, application_id, template_id, filled_by, status, assessed, form_data, version, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(prev.ID),
		uuid.UUID(prev.ApplicationID),
		uuid.UUID(prev.TemplateID),
		prev.FilledBy.String(),
		prev.Status.String(),
		prev.Assessed.String(),
		formData,
		prev.Version,
		prev.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("archive submission version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByApplication(ctx context.Context, appID domain.ApplicationID) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM form_submissions
		WHERE application_id = $1
	`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListVersions(ctx context.Context, appID domain.ApplicationID, templateID domain.FormTemplateID) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT submission_id, application_id, template_id, filled_by, status, assessed, form_data, version, submitted_at, submitted_at
		FROM form_submission_versions
		WHERE application_id = $1 AND template_id = $2
		ORDER BY version ASC
	`, uuid.UUID(appID), uuid.UUID(templateID))
	if err != nil {
		return nil, fmt.Errorf("list submission versions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission version: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	latest, err := s.Get(ctx, appID, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return out, nil
		}
		return nil, err
	}
	return append(out, latest), nil
}

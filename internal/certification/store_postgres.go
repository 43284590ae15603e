package certification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certflow/pkg/domain"
	"certflow/pkg/platform/sentinel"
)

// PostgresStore reads certification definitions from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id domain.CertificationID) (Certification, error) {
	var cert Certification
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM certifications WHERE id = $1`,
		uuid.UUID(id),
	).Scan((*uuid.UUID)(&cert.ID), &cert.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Certification{}, sentinel.ErrNotFound
		}
		return Certification{}, fmt.Errorf("get certification: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, title, stage_number, is_required, filled_by
		FROM certification_form_slots
		WHERE certification_id = $1
		ORDER BY position ASC
	`, uuid.UUID(id))
	if err != nil {
		return Certification{}, fmt.Errorf("list form slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slot FormSlot
		var filledBy string
		if err := rows.Scan((*uuid.UUID)(&slot.TemplateID), &slot.Title, &slot.StageNumber, &slot.IsRequired, &filledBy); err != nil {
			return Certification{}, fmt.Errorf("scan form slot: %w", err)
		}
		slot.FilledBy, err = domain.ParseFilledBy(filledBy)
		if err != nil {
			return Certification{}, fmt.Errorf("form slot %s: %w", slot.TemplateID, err)
		}
		cert.FormSlots = append(cert.FormSlots, slot)
	}
	if err := rows.Err(); err != nil {
		return Certification{}, fmt.Errorf("iterate form slots: %w", err)
	}
	return cert, nil
}

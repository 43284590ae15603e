package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"certflow/pkg/domain"
)

// PostgresStore reads payment settlement state from the payments table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) IsFullyPaid(ctx context.Context, appID domain.ApplicationID) (bool, error) {
	var rec Record
	rec.ApplicationID = appID
	err := s.db.QueryRowContext(ctx, `
		SELECT fully_paid, remaining_cents
		FROM payments
		WHERE application_id = $1
	`, uuid.UUID(appID)).Scan(&rec.FullyPaid, &rec.RemainingCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read payment: %w", err)
	}
	return rec.Settled(), nil
}

package documents

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"certflow/pkg/domain"
)

// PostgresStore counts uploads from the uploads table, one row per
// artifact with a kind discriminator.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Counts(ctx context.Context, appID domain.ApplicationID) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'document'),
			COUNT(*) FILTER (WHERE kind = 'image'),
			COUNT(*) FILTER (WHERE kind = 'video')
		FROM uploads
		WHERE application_id = $1
	`, uuid.UUID(appID)).Scan(&c.Documents, &c.Images, &c.Videos)
	if err != nil {
		return Counts{}, fmt.Errorf("count uploads: %w", err)
	}
	return c, nil
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
)

// ParticipantRepository handles read access to participants.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// FindByID returns a participant by its ID.
func (r *ParticipantRepository) FindByID(ctx context.Context, id string) (*models.Participant, error) {
	const query = `SELECT id, full_name, document_id, email, participant_type_id, active, created_at, updated_at
        FROM participants WHERE id = $1`
	var participant models.Participant
	if err := r.db.GetContext(ctx, &participant, query, id); err != nil {
		return nil, err
	}
	return &participant, nil
}

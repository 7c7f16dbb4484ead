package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
)

// PriceRepository resolves the scheduled price for a course and
// participant type. At most one active row exists per pair.
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository constructs the repository.
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetPrice returns the active scheduled price for the pair. sql.ErrNoRows
// surfaces when no schedule covers the pair.
func (r *PriceRepository) GetPrice(ctx context.Context, courseID, participantTypeID string) (float64, error) {
	const query = `SELECT price FROM price_schedules
        WHERE course_id = $1 AND participant_type_id = $2 AND active = TRUE`
	var price float64
	if err := r.db.GetContext(ctx, &price, query, courseID, participantTypeID); err != nil {
		return 0, err
	}
	return price, nil
}

// FindSchedule returns the full active schedule row for the pair.
func (r *PriceRepository) FindSchedule(ctx context.Context, courseID, participantTypeID string) (*models.PriceSchedule, error) {
	const query = `SELECT id, course_id, participant_type_id, price, active, created_at FROM price_schedules
        WHERE course_id = $1 AND participant_type_id = $2 AND active = TRUE`
	var schedule models.PriceSchedule
	if err := r.db.GetContext(ctx, &schedule, query, courseID, participantTypeID); err != nil {
		return nil, err
	}
	return &schedule, nil
}

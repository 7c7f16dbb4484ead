package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

// SeatLedger is the single entry point for mutating a course's occupied
// seat counter. Both operations run inside a caller-held transaction and
// take the course row lock first, so concurrent reservations against the
// same course are serialized by the database.
type SeatLedger struct {
	logger *zap.Logger
}

// NewSeatLedger constructs a seat ledger.
func NewSeatLedger(logger *zap.Logger) *SeatLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatLedger{logger: logger}
}

type seatRow struct {
	Total    int `db:"capacity_total"`
	Occupied int `db:"capacity_occupied"`
}

// lockSeatRow acquires the course row lock and returns the counters.
func (l *SeatLedger) lockSeatRow(ctx context.Context, tx *sqlx.Tx, courseID string) (*seatRow, error) {
	const query = `SELECT capacity_total, capacity_occupied FROM courses WHERE id = $1 FOR UPDATE`
	var row seatRow
	if err := tx.GetContext(ctx, &row, query, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, translateDBError(fmt.Errorf("lock course row: %w", err), "")
	}
	return &row, nil
}

// Reserve consumes one seat. It fails with CAPACITY_EXCEEDED when no seat
// is free; the check and the increment happen under the same row lock.
func (l *SeatLedger) Reserve(ctx context.Context, tx *sqlx.Tx, courseID string) error {
	row, err := l.lockSeatRow(ctx, tx, courseID)
	if err != nil {
		return err
	}
	if row.Occupied >= row.Total {
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "no seats available for course")
	}
	const update = `UPDATE courses SET capacity_occupied = capacity_occupied + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, courseID); err != nil {
		return translateDBError(fmt.Errorf("reserve seat: %w", err), "")
	}
	return nil
}

// Release frees one seat. Decrementing an already-zero counter is a logic
// error upstream; it is clamped and logged, never a failure.
func (l *SeatLedger) Release(ctx context.Context, tx *sqlx.Tx, courseID string) error {
	row, err := l.lockSeatRow(ctx, tx, courseID)
	if err != nil {
		return err
	}
	if row.Occupied <= 0 {
		l.logger.Error("seat release on empty course counter", zap.String("course_id", courseID))
		return nil
	}
	const update = `UPDATE courses SET capacity_occupied = capacity_occupied - 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, courseID); err != nil {
		return translateDBError(fmt.Errorf("release seat: %w", err), "")
	}
	return nil
}

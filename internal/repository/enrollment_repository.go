package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

// Unique constraints backing the enrollment invariants.
const (
	constraintEnrollmentPreReg      = "enrollments_pre_registration_id_key"
	constraintEnrollmentParticipant = "enrollments_participant_course_key"
)

// EnrollmentRepository owns the transactional state changes of official
// enrollments. Every write runs inside a single transaction holding the
// course row lock, acquired through the seat ledger.
type EnrollmentRepository struct {
	db     *sqlx.DB
	ledger *SeatLedger
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB, ledger *SeatLedger) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, ledger: ledger}
}

const enrollmentColumns = `id, participant_id, course_id, pre_registration_id, status, final_grade, observations, withdrawal_reason, enrolled_at, updated_at`

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with participant and course info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.participant_id, e.course_id, e.pre_registration_id, e.status, e.final_grade,
        e.observations, e.withdrawal_reason, e.enrolled_at, e.updated_at,
        pa.full_name AS participant_name, c.name AS course_name, c.code AS course_code
        FROM enrollments e
        LEFT JOIN participants pa ON pa.id = e.participant_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN participants pa ON pa.id = e.participant_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.ParticipantID != "" {
		conditions = append(conditions, fmt.Sprintf("e.participant_id = $%d", len(args)+1))
		args = append(args, filter.ParticipantID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":      "e.enrolled_at",
		"participant_name": "pa.full_name",
		"course_name":      "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.participant_id, e.course_id, e.pre_registration_id, e.status, e.final_grade,
        e.observations, e.withdrawal_reason, e.enrolled_at, e.updated_at,
        pa.full_name AS participant_name, c.name AS course_name, c.code AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByCourse returns all enrollments for a course.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE course_id = $1`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// Promote creates the official enrollment for an approved and paid
// pre-registration, consuming one seat. All preconditions are re-checked
// inside the transaction so two concurrent calls against the last seat
// are linearized by the course row lock.
func (r *EnrollmentRepository) Promote(ctx context.Context, preRegistrationID string, observations *string) (enrollment *models.Enrollment, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin promote transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var preReg models.PreRegistration
	const lockPreReg = `SELECT id, participant_id, course_id, status, notes, created_at, status_changed_at
        FROM pre_registrations WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &preReg, lockPreReg, preRegistrationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, translateDBError(fmt.Errorf("lock pre-registration: %w", err), "")
	}
	if preReg.Status != models.PreRegistrationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not approved")
	}

	var paid bool
	if err = tx.GetContext(ctx, &paid, `SELECT EXISTS (SELECT 1 FROM payments WHERE pre_registration_id = $1)`, preRegistrationID); err != nil {
		return nil, fmt.Errorf("check payment: %w", err)
	}
	if !paid {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration has no payment")
	}

	var enrolled bool
	const enrolledQuery = `SELECT EXISTS (SELECT 1 FROM enrollments
        WHERE pre_registration_id = $1 OR (participant_id = $2 AND course_id = $3))`
	if err = tx.GetContext(ctx, &enrolled, enrolledQuery, preRegistrationID, preReg.ParticipantID, preReg.CourseID); err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "participant already enrolled")
	}

	if err = r.ledger.Reserve(ctx, tx, preReg.CourseID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	enrollment = &models.Enrollment{
		ID:                uuid.NewString(),
		ParticipantID:     preReg.ParticipantID,
		CourseID:          preReg.CourseID,
		PreRegistrationID: preRegistrationID,
		Status:            models.EnrollmentStatusEnrolled,
		Observations:      observations,
		EnrolledAt:        now,
		UpdatedAt:         now,
	}
	const insert = `INSERT INTO enrollments (id, participant_id, course_id, pre_registration_id, status, observations, enrolled_at, updated_at)
        VALUES (:id, :participant_id, :course_id, :pre_registration_id, :status, :observations, :enrolled_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		if isUniqueViolation(err, "") {
			err = appErrors.Clone(appErrors.ErrDuplicate, "participant already enrolled")
			return nil, err
		}
		return nil, translateDBError(fmt.Errorf("create enrollment: %w", err), "enrollment conflict")
	}

	if err = tx.Commit(); err != nil {
		return nil, translateDBError(fmt.Errorf("commit promote: %w", err), "enrollment conflict")
	}
	return enrollment, nil
}

// Withdraw moves an enrollment to WITHDRAWN and releases its seat in the
// same transaction.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, reason string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin withdraw transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := r.lockEnrollment(ctx, tx, id)
	if err != nil {
		return err
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment already withdrawn")
	}

	if err = r.ledger.Release(ctx, tx, enrollment.CourseID); err != nil {
		return err
	}

	const update = `UPDATE enrollments SET status = $2, withdrawal_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, id, models.EnrollmentStatusWithdrawn, reason, time.Now().UTC()); err != nil {
		return translateDBError(fmt.Errorf("withdraw enrollment: %w", err), "")
	}

	if err = tx.Commit(); err != nil {
		return translateDBError(fmt.Errorf("commit withdraw: %w", err), "")
	}
	return nil
}

// Reactivate moves a WITHDRAWN enrollment back to a non-withdrawn status,
// re-consuming a seat before the status change commits.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, id string, target models.EnrollmentStatus) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reactivate transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := r.lockEnrollment(ctx, tx, id)
	if err != nil {
		return err
	}
	if enrollment.Status != models.EnrollmentStatusWithdrawn {
		return appErrors.Clone(appErrors.ErrInvalidState, "enrollment is not withdrawn")
	}

	if err = r.ledger.Reserve(ctx, tx, enrollment.CourseID); err != nil {
		return err
	}

	const update = `UPDATE enrollments SET status = $2, withdrawal_reason = NULL, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, update, id, target, time.Now().UTC()); err != nil {
		return translateDBError(fmt.Errorf("reactivate enrollment: %w", err), "")
	}

	if err = tx.Commit(); err != nil {
		return translateDBError(fmt.Errorf("commit reactivate: %w", err), "")
	}
	return nil
}

// UpdateGrade stores the final grade and its derived status. WITHDRAWN
// rows are excluded by the predicate; false means the row was missing or
// withdrawn.
func (r *EnrollmentRepository) UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (bool, error) {
	const query = `UPDATE enrollments SET final_grade = $2, status = $3, updated_at = $4
        WHERE id = $1 AND status <> $5`
	res, err := r.db.ExecContext(ctx, query, id, grade, status, time.Now().UTC(), models.EnrollmentStatusWithdrawn)
	if err != nil {
		return false, translateDBError(fmt.Errorf("update grade: %w", err), "")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update grade rows: %w", err)
	}
	return affected == 1, nil
}

func (r *EnrollmentRepository) lockEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, translateDBError(fmt.Errorf("lock enrollment: %w", err), "")
	}
	return &enrollment, nil
}

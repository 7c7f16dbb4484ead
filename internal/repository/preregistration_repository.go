package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
)

// PreRegistrationRepository handles persistence of pre-registrations.
type PreRegistrationRepository struct {
	db *sqlx.DB
}

// NewPreRegistrationRepository constructs the repository.
func NewPreRegistrationRepository(db *sqlx.DB) *PreRegistrationRepository {
	return &PreRegistrationRepository{db: db}
}

// FindByID returns a pre-registration by its ID.
func (r *PreRegistrationRepository) FindByID(ctx context.Context, id string) (*models.PreRegistration, error) {
	const query = `SELECT id, participant_id, course_id, status, notes, created_at, status_changed_at
        FROM pre_registrations WHERE id = $1`
	var preReg models.PreRegistration
	if err := r.db.GetContext(ctx, &preReg, query, id); err != nil {
		return nil, err
	}
	return &preReg, nil
}

// FindDetailByID returns a pre-registration with participant and course info.
func (r *PreRegistrationRepository) FindDetailByID(ctx context.Context, id string) (*models.PreRegistrationDetail, error) {
	const query = `SELECT p.id, p.participant_id, p.course_id, p.status, p.notes, p.created_at, p.status_changed_at,
        pa.full_name AS participant_name, pa.document_id AS participant_document,
        c.name AS course_name, c.code AS course_code
        FROM pre_registrations p
        LEFT JOIN participants pa ON pa.id = p.participant_id
        LEFT JOIN courses c ON c.id = p.course_id
        WHERE p.id = $1`
	var detail models.PreRegistrationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns pre-registrations filtered by the provided criteria.
func (r *PreRegistrationRepository) List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistrationDetail, int, error) {
	base := `FROM pre_registrations p
LEFT JOIN participants pa ON pa.id = p.participant_id
LEFT JOIN courses c ON c.id = p.course_id`
	var conditions []string
	var args []interface{}

	if filter.ParticipantID != "" {
		conditions = append(conditions, fmt.Sprintf("p.participant_id = $%d", len(args)+1))
		args = append(args, filter.ParticipantID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("p.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":       "p.created_at",
		"participant_name": "pa.full_name",
		"course_name":      "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "p.created_at"
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

	query := fmt.Sprintf(`SELECT p.id, p.participant_id, p.course_id, p.status, p.notes, p.created_at, p.status_changed_at,
        pa.full_name AS participant_name, pa.document_id AS participant_document,
        c.name AS course_name, c.code AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var preRegs []models.PreRegistrationDetail
	if err := r.db.SelectContext(ctx, &preRegs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list pre-registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count pre-registrations: %w", err)
	}
	return preRegs, total, nil
}

// TransitionStatus updates the status only when the row still holds the
// expected current status. Returns false when the row was not in that
// status anymore, so a concurrent transition loses cleanly.
func (r *PreRegistrationRepository) TransitionStatus(ctx context.Context, id string, from, to models.PreRegistrationStatus, notes *string) (bool, error) {
	const query = `UPDATE pre_registrations
        SET status = $3, notes = COALESCE($4, notes), status_changed_at = $5
        WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, notes, time.Now().UTC())
	if err != nil {
		return false, translateDBError(fmt.Errorf("transition pre-registration: %w", err), "pre-registration conflict")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition pre-registration rows: %w", err)
	}
	return affected == 1, nil
}

// HasEnrollment reports whether an enrollment already references this
// pre-registration.
func (r *PreRegistrationRepository) HasEnrollment(ctx context.Context, preRegistrationID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE pre_registration_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, preRegistrationID); err != nil {
		return false, fmt.Errorf("check enrollment existence: %w", err)
	}
	return exists, nil
}

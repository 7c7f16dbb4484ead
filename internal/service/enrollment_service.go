package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Promote(ctx context.Context, preRegistrationID string, observations *string) (*models.Enrollment, error)
	Withdraw(ctx context.Context, id string, reason string) error
	Reactivate(ctx context.Context, id string, target models.EnrollmentStatus) error
	UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (bool, error)
}

type availabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, courseID string)
}

type promotionRecorder interface {
	RecordPromotion(outcome string)
	RecordSeatMovement(direction string)
}

// PromoteRequest identifies the pre-registration to promote.
type PromoteRequest struct {
	PreRegistrationID string `json:"pre_registration_id" validate:"required"`
	Observations      string `json:"observations"`
}

// PromoteBatchRequest lists pre-registrations for best-effort promotion.
type PromoteBatchRequest struct {
	IDs          []string `json:"ids" validate:"required,min=1"`
	Observations string   `json:"observations"`
}

// GradeRequest carries a final grade in [0,100].
type GradeRequest struct {
	Grade float64 `json:"grade"`
}

// WithdrawRequest carries the mandatory withdrawal reason.
type WithdrawRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ReactivateRequest names the status a withdrawn enrollment returns to.
type ReactivateRequest struct {
	TargetStatus models.EnrollmentStatus `json:"target_status" validate:"required"`
}

// EnrollmentService orchestrates official enrollments: promotion from
// approved-and-paid pre-registrations, grading, withdrawal and
// reactivation. Seat movement is delegated to the repository transaction.
type EnrollmentService struct {
	repo         enrollmentRepository
	availability availabilityInvalidator
	metrics      promotionRecorder
	passingGrade float64
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, availability availabilityInvalidator, metrics promotionRecorder, passingGrade float64, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if passingGrade <= 0 {
		passingGrade = 51
	}
	return &EnrollmentService{repo: repo, availability: availability, metrics: metrics, passingGrade: passingGrade, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment with context info.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Promote creates the official enrollment for an approved, paid
// pre-registration, consuming a seat atomically.
func (s *EnrollmentService) Promote(ctx context.Context, req PromoteRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promote payload")
	}
	var observations *string
	if req.Observations != "" {
		observations = &req.Observations
	}

	enrollment, err := s.repo.Promote(ctx, req.PreRegistrationID, observations)
	if err != nil {
		s.recordPromotion(appErrors.FromError(err).Code)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote pre-registration")
	}

	s.recordPromotion("ok")
	s.recordSeatMovement("reserve")
	s.invalidate(ctx, enrollment.CourseID)
	s.logger.Info("pre-registration promoted",
		zap.String("pre_registration_id", req.PreRegistrationID),
		zap.String("enrollment_id", enrollment.ID),
		zap.String("course_id", enrollment.CourseID))
	return enrollment, nil
}

// PromoteBatch promotes each pre-registration in its own transaction.
// Seat exhaustion on one item never blocks or rolls back the others.
func (s *EnrollmentService) PromoteBatch(ctx context.Context, req PromoteBatchRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	result := &models.BatchResult{Items: make([]models.BatchItemResult, 0, len(req.IDs))}
	for _, id := range req.IDs {
		if _, err := s.Promote(ctx, PromoteRequest{PreRegistrationID: id, Observations: req.Observations}); err != nil {
			result.Failed++
			result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: false, Error: appErrors.FromError(err).Message})
			continue
		}
		result.Succeeded++
		result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: true})
	}
	return result, nil
}

// SetFinalGrade stores the grade and derives the status: passing grades
// move the enrollment to APPROVED, the rest to FAILED. Re-grading
// re-evaluates the status each time.
func (s *EnrollmentService) SetFinalGrade(ctx context.Context, id string, req GradeRequest) (*models.EnrollmentDetail, error) {
	if req.Grade < 0 || req.Grade > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade must be between 0 and 100")
	}

	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "withdrawn enrollments cannot be graded")
	}

	status := models.EnrollmentStatusFailed
	if req.Grade >= s.passingGrade {
		status = models.EnrollmentStatusApproved
	}
	ok, err := s.repo.UpdateGrade(ctx, id, req.Grade, status)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment can no longer be graded")
	}
	return s.Get(ctx, id)
}

// Withdraw moves an enrollment to WITHDRAWN, releasing its seat.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string, req WithdrawRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "withdrawal reason is required")
	}

	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Withdraw(ctx, id, req.Reason); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	s.recordSeatMovement("release")
	s.invalidate(ctx, enrollment.CourseID)
	s.logger.Info("enrollment withdrawn", zap.String("enrollment_id", id))
	return s.Get(ctx, id)
}

// Reactivate returns a withdrawn enrollment to a non-withdrawn status,
// re-consuming a seat.
func (s *EnrollmentService) Reactivate(ctx context.Context, id string, req ReactivateRequest) (*models.EnrollmentDetail, error) {
	if !req.TargetStatus.Valid() || req.TargetStatus == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target status must be a non-withdrawn enrollment status")
	}

	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Reactivate(ctx, id, req.TargetStatus); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
	}
	s.recordSeatMovement("reserve")
	s.invalidate(ctx, enrollment.CourseID)
	s.logger.Info("enrollment reactivated", zap.String("enrollment_id", id), zap.String("target_status", string(req.TargetStatus)))
	return s.Get(ctx, id)
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) invalidate(ctx context.Context, courseID string) {
	if s.availability != nil {
		s.availability.InvalidateAvailability(ctx, courseID)
	}
}

func (s *EnrollmentService) recordPromotion(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordPromotion(outcome)
	}
}

func (s *EnrollmentService) recordSeatMovement(direction string) {
	if s.metrics != nil {
		s.metrics.RecordSeatMovement(direction)
	}
}

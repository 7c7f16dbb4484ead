package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type preRegistrationRepository interface {
	FindByID(ctx context.Context, id string) (*models.PreRegistration, error)
	FindDetailByID(ctx context.Context, id string) (*models.PreRegistrationDetail, error)
	List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistrationDetail, int, error)
	TransitionStatus(ctx context.Context, id string, from, to models.PreRegistrationStatus, notes *string) (bool, error)
	HasEnrollment(ctx context.Context, preRegistrationID string) (bool, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ApproveRequest carries optional reviewer notes.
type ApproveRequest struct {
	Notes string `json:"notes"`
}

// BatchRequest lists the pre-registrations a batch operates on.
type BatchRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1"`
	Notes  string   `json:"notes"`
	Reason string   `json:"reason"`
}

// PreRegistrationService governs the PENDING -> APPROVED/REJECTED state
// machine. Approval pre-reserves eligibility only; seats are consumed at
// enrollment time.
type PreRegistrationService struct {
	repo      preRegistrationRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreRegistrationService constructs PreRegistrationService.
func NewPreRegistrationService(repo preRegistrationRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *PreRegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreRegistrationService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// List returns pre-registrations with pagination metadata.
func (s *PreRegistrationService) List(ctx context.Context, filter models.PreRegistrationFilter) ([]models.PreRegistrationDetail, *models.Pagination, error) {
	preRegs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pre-registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return preRegs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single pre-registration with context info.
func (s *PreRegistrationService) Get(ctx context.Context, id string) (*models.PreRegistrationDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-registration")
	}
	return detail, nil
}

// Approve moves a pending pre-registration to APPROVED. The course must
// not be full and must not have started; no seat is consumed here since
// capacity is re-checked when the enrollment is created.
func (s *PreRegistrationService) Approve(ctx context.Context, id string, req ApproveRequest) (*models.PreRegistrationDetail, error) {
	preReg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if preReg.Status != models.PreRegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not pending")
	}

	course, err := s.courses.FindByID(ctx, preReg.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.CapacityOccupied >= course.CapacityTotal {
		return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course is full")
	}
	if !course.StartDate.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "course already started")
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	ok, err := s.repo.TransitionStatus(ctx, id, models.PreRegistrationStatusPending, models.PreRegistrationStatusApproved, notes)
	if err != nil {
		return nil, s.wrapTransition(err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not pending")
	}
	s.logger.Info("pre-registration approved", zap.String("pre_registration_id", id))
	return s.Get(ctx, id)
}

// Reject moves a pending pre-registration to REJECTED. The reason is
// mandatory and recorded in the notes.
func (s *PreRegistrationService) Reject(ctx context.Context, id string, req RejectRequest) (*models.PreRegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	preReg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if preReg.Status != models.PreRegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not pending")
	}

	ok, err := s.repo.TransitionStatus(ctx, id, models.PreRegistrationStatusPending, models.PreRegistrationStatusRejected, &req.Reason)
	if err != nil {
		return nil, s.wrapTransition(err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not pending")
	}
	s.logger.Info("pre-registration rejected", zap.String("pre_registration_id", id))
	return s.Get(ctx, id)
}

// RevertToPending returns an approved pre-registration to PENDING. It is
// disallowed once an enrollment exists. A payment recorded before the
// revert stays untouched and is picked up again on re-approval.
func (s *PreRegistrationService) RevertToPending(ctx context.Context, id string) (*models.PreRegistrationDetail, error) {
	preReg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if preReg.Status == models.PreRegistrationStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is already pending")
	}
	if preReg.Status != models.PreRegistrationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only approved pre-registrations can be reverted")
	}

	enrolled, err := s.repo.HasEnrollment(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "enrollment already exists for pre-registration")
	}

	ok, err := s.repo.TransitionStatus(ctx, id, models.PreRegistrationStatusApproved, models.PreRegistrationStatusPending, nil)
	if err != nil {
		return nil, s.wrapTransition(err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is no longer approved")
	}
	s.logger.Info("pre-registration reverted to pending", zap.String("pre_registration_id", id))
	return s.Get(ctx, id)
}

// ApproveBatch applies Approve per item. One item's failure never rolls
// back its siblings.
func (s *PreRegistrationService) ApproveBatch(ctx context.Context, req BatchRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	result := &models.BatchResult{Items: make([]models.BatchItemResult, 0, len(req.IDs))}
	for _, id := range req.IDs {
		if _, err := s.Approve(ctx, id, ApproveRequest{Notes: req.Notes}); err != nil {
			result.Failed++
			result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: false, Error: appErrors.FromError(err).Message})
			continue
		}
		result.Succeeded++
		result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: true})
	}
	return result, nil
}

// RejectBatch applies Reject per item with the shared reason.
func (s *PreRegistrationService) RejectBatch(ctx context.Context, req BatchRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	result := &models.BatchResult{Items: make([]models.BatchItemResult, 0, len(req.IDs))}
	for _, id := range req.IDs {
		if _, err := s.Reject(ctx, id, RejectRequest{Reason: req.Reason}); err != nil {
			result.Failed++
			result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: false, Error: appErrors.FromError(err).Message})
			continue
		}
		result.Succeeded++
		result.Items = append(result.Items, models.BatchItemResult{ID: id, OK: true})
	}
	return result, nil
}

func (s *PreRegistrationService) load(ctx context.Context, id string) (*models.PreRegistration, error) {
	preReg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-registration")
	}
	return preReg, nil
}

func (s *PreRegistrationService) wrapTransition(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update pre-registration")
}

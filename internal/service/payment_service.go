package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByPreRegistration(ctx context.Context, preRegistrationID string) (*models.Payment, error)
	ReceiptExists(ctx context.Context, receiptNumber, excludeID string) (bool, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
}

type preRegistrationReader interface {
	FindByID(ctx context.Context, id string) (*models.PreRegistration, error)
	HasEnrollment(ctx context.Context, preRegistrationID string) (bool, error)
}

type participantReader interface {
	FindByID(ctx context.Context, id string) (*models.Participant, error)
}

type priceReader interface {
	GetPrice(ctx context.Context, courseID, participantTypeID string) (float64, error)
}

type paymentRecorder interface {
	RecordPayment(discrepancy bool)
}

// RecordPaymentRequest captures a payment against an approved
// pre-registration.
type RecordPaymentRequest struct {
	PreRegistrationID string    `json:"pre_registration_id" validate:"required"`
	Amount            float64   `json:"amount" validate:"required,gt=0"`
	ReceiptNumber     string    `json:"receipt_number" validate:"required"`
	PaidAt            time.Time `json:"paid_at"`
}

// EditPaymentRequest rewrites a payment's mutable fields.
type EditPaymentRequest struct {
	Amount        float64   `json:"amount" validate:"required,gt=0"`
	ReceiptNumber string    `json:"receipt_number" validate:"required"`
	PaidAt        time.Time `json:"paid_at"`
}

// PaymentService records payments and reconciles them against the price
// schedule. Discrepancies are reported, never blocking.
type PaymentService struct {
	payments  paymentRepository
	preRegs   preRegistrationReader
	people    participantReader
	prices    priceReader
	metrics   paymentRecorder
	tolerance float64
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(payments paymentRepository, preRegs preRegistrationReader, people participantReader, prices priceReader, metrics paymentRecorder, tolerance float64, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &PaymentService{payments: payments, preRegs: preRegs, people: people, prices: prices, metrics: metrics, tolerance: tolerance, validator: validate, logger: logger}
}

// Get returns a payment by id.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Record captures a payment for an approved, unpaid pre-registration. The
// receipt number must be globally unique. A price discrepancy beyond the
// tolerance is reported alongside the successful write.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest) (*models.PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	preReg, err := s.preRegs.FindByID(ctx, req.PreRegistrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pre-registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-registration")
	}
	if preReg.Status != models.PreRegistrationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "pre-registration is not approved")
	}

	if _, err := s.payments.FindByPreRegistration(ctx, req.PreRegistrationID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "pre-registration already paid")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing payment")
	}

	taken, err := s.payments.ReceiptExists(ctx, req.ReceiptNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receipt number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "receipt number already used")
	}

	discrepancy, err := s.reconcile(ctx, preReg, req.Amount)
	if err != nil {
		return nil, err
	}

	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	payment := &models.Payment{
		PreRegistrationID: req.PreRegistrationID,
		Amount:            req.Amount,
		ReceiptNumber:     req.ReceiptNumber,
		PaidAt:            paidAt,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(discrepancy != nil)
	}
	if discrepancy != nil {
		s.logger.Warn("payment discrepancy recorded",
			zap.String("payment_id", payment.ID),
			zap.Float64("expected", discrepancy.Expected),
			zap.Float64("actual", discrepancy.Actual),
			zap.Float64("delta", discrepancy.Delta))
	}
	return &models.PaymentResult{Payment: payment, Discrepancy: discrepancy}, nil
}

// Edit rewrites a payment. Payments become immutable once an enrollment
// references the same pre-registration.
func (s *PaymentService) Edit(ctx context.Context, id string, req EditPaymentRequest) (*models.PaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.preRegs.HasEnrollment(ctx, payment.PreRegistrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "payment is immutable once an enrollment exists")
	}

	if req.ReceiptNumber != payment.ReceiptNumber {
		taken, err := s.payments.ReceiptExists(ctx, req.ReceiptNumber, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receipt number")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrDuplicate, "receipt number already used")
		}
	}

	preReg, err := s.preRegs.FindByID(ctx, payment.PreRegistrationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pre-registration")
	}
	discrepancy, err := s.reconcile(ctx, preReg, req.Amount)
	if err != nil {
		return nil, err
	}

	payment.Amount = req.Amount
	payment.ReceiptNumber = req.ReceiptNumber
	if !req.PaidAt.IsZero() {
		payment.PaidAt = req.PaidAt
	}
	if err := s.payments.Update(ctx, payment); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	return &models.PaymentResult{Payment: payment, Discrepancy: discrepancy}, nil
}

// reconcile compares the amount with the scheduled price for the
// pre-registration's course and participant type.
func (s *PaymentService) reconcile(ctx context.Context, preReg *models.PreRegistration, amount float64) (*models.PaymentDiscrepancy, error) {
	participant, err := s.people.FindByID(ctx, preReg.ParticipantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}

	expected, err := s.prices.GetPrice(ctx, preReg.CourseID, participant.ParticipantTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no price schedule for course and participant type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve price")
	}

	if math.Abs(amount-expected) <= s.tolerance {
		return nil, nil
	}
	return &models.PaymentDiscrepancy{Expected: expected, Actual: amount, Delta: amount - expected}, nil
}

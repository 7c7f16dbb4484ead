package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

// Unique constraints backing the payment invariants. The application
// checks first, the constraints catch races.
const (
	constraintPaymentReceipt = "payments_receipt_number_key"
	constraintPaymentPreReg  = "payments_pre_registration_id_key"
)

// PaymentRepository handles persistence of payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	const query = `SELECT id, pre_registration_id, amount, receipt_number, paid_at, created_at, updated_at
        FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByPreRegistration returns the payment for a pre-registration, if any.
func (r *PaymentRepository) FindByPreRegistration(ctx context.Context, preRegistrationID string) (*models.Payment, error) {
	const query = `SELECT id, pre_registration_id, amount, receipt_number, paid_at, created_at, updated_at
        FROM payments WHERE pre_registration_id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, preRegistrationID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ReceiptExists reports whether a receipt number is already recorded.
func (r *PaymentRepository) ReceiptExists(ctx context.Context, receiptNumber, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE receipt_number = $1`
	args := []interface{}{receiptNumber}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("check receipt: %w", err)
	}
	return exists, nil
}

// Create persists a new payment. Unique-constraint races are translated
// into the matching domain error.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO payments (id, pre_registration_id, amount, receipt_number, paid_at, created_at, updated_at)
        VALUES (:id, :pre_registration_id, :amount, :receipt_number, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		if isUniqueViolation(err, constraintPaymentReceipt) {
			return appErrors.Clone(appErrors.ErrDuplicate, "receipt number already used")
		}
		if isUniqueViolation(err, constraintPaymentPreReg) {
			return appErrors.Clone(appErrors.ErrDuplicate, "pre-registration already paid")
		}
		return translateDBError(fmt.Errorf("create payment: %w", err), "payment conflict")
	}
	return nil
}

// Update rewrites the mutable payment fields. The service has already
// verified the payment is still editable.
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payments SET amount = :amount, receipt_number = :receipt_number, paid_at = :paid_at, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		if isUniqueViolation(err, constraintPaymentReceipt) {
			return appErrors.Clone(appErrors.ErrDuplicate, "receipt number already used")
		}
		return translateDBError(fmt.Errorf("update payment: %w", err), "payment conflict")
	}
	return nil
}

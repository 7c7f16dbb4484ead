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

// Unique constraints backing the certificate invariants.
const (
	constraintCertificateCode       = "certificates_verification_code_key"
	constraintCertificateEnrollment = "certificates_enrollment_id_key"
)

// ErrCodeCollision reports that a freshly generated verification code
// raced with another insert. The service retries with a new code.
var ErrCodeCollision = appErrors.New("CODE_COLLISION", 409, "verification code already taken")

// CertificateRepository handles persistence of certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindByEnrollment returns the certificate for an enrollment, if any.
func (r *CertificateRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Certificate, error) {
	const query = `SELECT id, enrollment_id, type, verification_code, issued_at
        FROM certificates WHERE enrollment_id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, enrollmentID); err != nil {
		return nil, err
	}
	return &cert, nil
}

// ExistsForEnrollment reports whether the enrollment is already certified.
func (r *CertificateRepository) ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM certificates WHERE enrollment_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID); err != nil {
		return false, fmt.Errorf("check certificate: %w", err)
	}
	return exists, nil
}

// CodeExists reports whether a verification code is already assigned.
func (r *CertificateRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM certificates WHERE verification_code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check verification code: %w", err)
	}
	return exists, nil
}

// Create persists a certificate. A verification-code race surfaces as
// ErrCodeCollision so the caller can regenerate; a second certificate for
// the same enrollment surfaces as DUPLICATE_CONSTRAINT.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}
	const query = `INSERT INTO certificates (id, enrollment_id, type, verification_code, issued_at)
        VALUES (:id, :enrollment_id, :type, :verification_code, :issued_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		if isUniqueViolation(err, constraintCertificateCode) {
			return ErrCodeCollision
		}
		if isUniqueViolation(err, constraintCertificateEnrollment) {
			return appErrors.Clone(appErrors.ErrDuplicate, "enrollment already certified")
		}
		return translateDBError(fmt.Errorf("create certificate: %w", err), "certificate conflict")
	}
	return nil
}

// FindVerification resolves a printed verification code to its
// certificate and enrollment context.
func (r *CertificateRepository) FindVerification(ctx context.Context, code string) (*models.CertificateVerification, error) {
	const query = `SELECT ct.id, ct.enrollment_id, ct.type, ct.verification_code, ct.issued_at,
        pa.full_name AS participant_name, c.name AS course_name, c.code AS course_code, e.status AS enrollment_status
        FROM certificates ct
        JOIN enrollments e ON e.id = ct.enrollment_id
        LEFT JOIN participants pa ON pa.id = e.participant_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE ct.verification_code = $1`
	var verification models.CertificateVerification
	if err := r.db.GetContext(ctx, &verification, query, code); err != nil {
		return nil, err
	}
	return &verification, nil
}

package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	"github.com/ctcadmin/ctc-admin-api/internal/repository"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

type certificateRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Certificate, error)
	ExistsForEnrollment(ctx context.Context, enrollmentID string) (bool, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, cert *models.Certificate) error
	FindVerification(ctx context.Context, code string) (*models.CertificateVerification, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Enrollment, error)
}

type certificateRecorder interface {
	RecordCertificate(certType string)
}

// IssueRequest asks for one certificate of a given type.
type IssueRequest struct {
	EnrollmentID string                 `json:"enrollment_id" validate:"required"`
	Type         models.CertificateType `json:"type" validate:"required"`
}

// BulkIssueRequest issues certificates of one type across a course.
type BulkIssueRequest struct {
	CourseID string                 `json:"course_id" validate:"required"`
	Type     models.CertificateType `json:"type" validate:"required"`
}

// Alphabet for verification code suffixes. 0/O and 1/I are excluded so
// printed codes survive retyping.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeSuffixLength = 8

// CertificateService decides certificate eligibility and issues
// certificates with globally unique verification codes.
type CertificateService struct {
	certs       certificateRepository
	enrollments enrollmentReader
	metrics     certificateRecorder
	codePrefix  string
	maxAttempts int
	honorGrade  float64
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(certs certificateRepository, enrollments enrollmentReader, metrics certificateRecorder, codePrefix string, maxAttempts int, honorGrade float64, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if codePrefix == "" {
		codePrefix = "CTC"
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if honorGrade <= 0 {
		honorGrade = 90
	}
	return &CertificateService{certs: certs, enrollments: enrollments, metrics: metrics, codePrefix: codePrefix, maxAttempts: maxAttempts, honorGrade: honorGrade, validator: validate, logger: logger}
}

// Eligible applies the certificate eligibility rule. It is a pure
// predicate over the enrollment outcome; certificate existence is checked
// separately.
func (s *CertificateService) Eligible(enrollment *models.Enrollment, certType models.CertificateType) bool {
	switch certType {
	case models.CertificateTypeParticipation:
		return enrollment.Status == models.EnrollmentStatusEnrolled || enrollment.Status == models.EnrollmentStatusApproved
	case models.CertificateTypeApproval:
		return enrollment.Status == models.EnrollmentStatusApproved
	case models.CertificateTypeHonorMention:
		return enrollment.Status == models.EnrollmentStatusApproved &&
			enrollment.FinalGrade != nil && *enrollment.FinalGrade >= s.honorGrade
	}
	return false
}

// Issue creates a certificate for an eligible, uncertified enrollment.
// The verification code is generated exactly once per certificate; the
// unique constraint backstops the generate-check loop against races.
func (s *CertificateService) Issue(ctx context.Context, req IssueRequest) (*models.Certificate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown certificate type")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	certified, err := s.certs.ExistsForEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate")
	}
	if certified {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "enrollment already certified")
	}

	if !s.Eligible(enrollment, req.Type) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("enrollment not eligible for %s certificate", req.Type))
	}

	cert, err := s.create(ctx, req.EnrollmentID, req.Type)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCertificate(string(req.Type))
	}
	s.logger.Info("certificate issued",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("type", string(req.Type)),
		zap.String("verification_code", cert.VerificationCode))
	return cert, nil
}

// IssueBulk issues certificates of one type to every eligible, uncertified
// enrollment of a course. Ineligible enrollments are skipped, not errored.
func (s *CertificateService) IssueBulk(ctx context.Context, req BulkIssueRequest) (*models.BulkIssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown certificate type")
	}

	enrollments, err := s.enrollments.ListByCourse(ctx, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	result := &models.BulkIssueResult{}
	for i := range enrollments {
		enrollment := &enrollments[i]
		if !s.Eligible(enrollment, req.Type) {
			result.Skipped++
			continue
		}
		certified, err := s.certs.ExistsForEnrollment(ctx, enrollment.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate")
		}
		if certified {
			result.Skipped++
			continue
		}
		if _, err := s.create(ctx, enrollment.ID, req.Type); err != nil {
			if appErrors.Is(err, appErrors.ErrDuplicate) {
				result.Skipped++
				continue
			}
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordCertificate(string(req.Type))
		}
		result.Issued++
	}
	return result, nil
}

// VerifyCode resolves a printed verification code.
func (s *CertificateService) VerifyCode(ctx context.Context, code string) (*models.CertificateVerification, error) {
	verification, err := s.certs.FindVerification(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify certificate")
	}
	return verification, nil
}

func (s *CertificateService) create(ctx context.Context, enrollmentID string, certType models.CertificateType) (*models.Certificate, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate verification code")
		}
		taken, err := s.certs.CodeExists(ctx, code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check verification code")
		}
		if taken {
			continue
		}

		cert := &models.Certificate{EnrollmentID: enrollmentID, Type: certType, VerificationCode: code}
		err = s.certs.Create(ctx, cert)
		if err == nil {
			return cert, nil
		}
		if errors.Is(err, repository.ErrCodeCollision) {
			continue
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create certificate")
	}
	return nil, appErrors.Wrap(nil, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "exhausted verification code attempts")
}

// generateCode builds a human-readable code: PREFIX-YYYY-XXXXXXXX.
func (s *CertificateService) generateCode() (string, error) {
	buf := make([]byte, codeSuffixLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return fmt.Sprintf("%s-%d-%s", s.codePrefix, time.Now().UTC().Year(), string(buf)), nil
}

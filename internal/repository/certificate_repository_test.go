package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

func TestCertificateRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cert := &models.Certificate{
		EnrollmentID:     "e-1",
		Type:             models.CertificateTypeApproval,
		VerificationCode: "CTC-2026-ABCDEFGH",
	}
	require.NoError(t, repo.Create(context.Background(), cert))
	assert.NotEmpty(t, cert.ID)
	assert.False(t, cert.IssuedAt.IsZero())
}

func TestCertificateRepositoryCreateCodeCollision(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "certificates_verification_code_key"})

	err := repo.Create(context.Background(), &models.Certificate{
		EnrollmentID: "e-1", Type: models.CertificateTypeApproval, VerificationCode: "CTC-2026-ABCDEFGH",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCodeCollision))
}

func TestCertificateRepositoryCreateAlreadyCertified(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO certificates")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "certificates_enrollment_id_key"})

	err := repo.Create(context.Background(), &models.Certificate{
		EnrollmentID: "e-1", Type: models.CertificateTypeApproval, VerificationCode: "CTC-2026-ABCDEFGH",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicate))
}

func TestCertificateRepositoryFindVerification(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "type", "verification_code", "issued_at", "participant_name", "course_name", "course_code", "enrollment_status"}).
		AddRow("cert-1", "e-1", "APPROVAL", "CTC-2026-ABCDEFGH", time.Now(), "Ana Gomez", "Welding I", "WLD-101", "APPROVED")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE ct.verification_code = $1")).
		WithArgs("CTC-2026-ABCDEFGH").
		WillReturnRows(rows)

	verification, err := repo.FindVerification(context.Background(), "CTC-2026-ABCDEFGH")
	require.NoError(t, err)
	assert.Equal(t, "Ana Gomez", verification.ParticipantName)
	assert.Equal(t, models.EnrollmentStatusApproved, verification.EnrollmentState)
}

package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctcadmin/ctc-admin-api/internal/models"
	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

func preRegLockRows(status models.PreRegistrationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "participant_id", "course_id", "status", "notes", "created_at", "status_changed_at"}).
		AddRow("pr-1", "p-1", "c-1", status, nil, time.Now(), nil)
}

func existsRows(exists bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(exists)
}

func TestEnrollmentRepositoryPromote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pre_registrations WHERE id = $1 FOR UPDATE")).
		WithArgs("pr-1").
		WillReturnRows(preRegLockRows(models.PreRegistrationStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM payments WHERE pre_registration_id = $1)")).
		WithArgs("pr-1").
		WillReturnRows(existsRows(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments")).
		WithArgs("pr-1", "p-1", "c-1").
		WillReturnRows(existsRows(false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 9))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET capacity_occupied = capacity_occupied + 1")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Promote(context.Background(), "pr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Equal(t, "p-1", enrollment.ParticipantID)
	assert.Equal(t, "c-1", enrollment.CourseID)
	assert.Equal(t, "pr-1", enrollment.PreRegistrationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteNotApproved(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pre_registrations WHERE id = $1 FOR UPDATE")).
		WithArgs("pr-1").
		WillReturnRows(preRegLockRows(models.PreRegistrationStatusPending))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "pr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteUnpaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pre_registrations WHERE id = $1 FOR UPDATE")).
		WithArgs("pr-1").
		WillReturnRows(preRegLockRows(models.PreRegistrationStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM payments WHERE pre_registration_id = $1)")).
		WithArgs("pr-1").
		WillReturnRows(existsRows(false))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "pr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteCourseFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pre_registrations WHERE id = $1 FOR UPDATE")).
		WithArgs("pr-1").
		WillReturnRows(preRegLockRows(models.PreRegistrationStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM payments WHERE pre_registration_id = $1)")).
		WithArgs("pr-1").
		WillReturnRows(existsRows(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments")).
		WithArgs("pr-1", "p-1", "c-1").
		WillReturnRows(existsRows(false))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 10))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "pr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteAlreadyEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pre_registrations WHERE id = $1 FOR UPDATE")).
		WithArgs("pr-1").
		WillReturnRows(preRegLockRows(models.PreRegistrationStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM payments WHERE pre_registration_id = $1)")).
		WithArgs("pr-1").
		WillReturnRows(existsRows(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments")).
		WithArgs("pr-1", "p-1", "c-1").
		WillReturnRows(existsRows(true))
	mock.ExpectRollback()

	_, err := repo.Promote(context.Background(), "pr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func enrollmentLockRows(status models.EnrollmentStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "participant_id", "course_id", "pre_registration_id", "status", "final_grade", "observations", "withdrawal_reason", "enrolled_at", "updated_at"}).
		AddRow("e-1", "p-1", "c-1", "pr-1", status, nil, nil, nil, time.Now(), time.Now())
}

func TestEnrollmentRepositoryWithdraw(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("e-1").
		WillReturnRows(enrollmentLockRows(models.EnrollmentStatusEnrolled))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET capacity_occupied = capacity_occupied - 1")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, withdrawal_reason = $3")).
		WithArgs("e-1", models.EnrollmentStatusWithdrawn, "moved away", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Withdraw(context.Background(), "e-1", "moved away"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdrawTwice(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("e-1").
		WillReturnRows(enrollmentLockRows(models.EnrollmentStatusWithdrawn))
	mock.ExpectRollback()

	err := repo.Withdraw(context.Background(), "e-1", "again")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1 FOR UPDATE")).
		WithArgs("e-1").
		WillReturnRows(enrollmentLockRows(models.EnrollmentStatusWithdrawn))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE courses SET capacity_occupied = capacity_occupied + 1")).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, withdrawal_reason = NULL")).
		WithArgs("e-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Reactivate(context.Background(), "e-1", models.EnrollmentStatusEnrolled))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateGrade(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET final_grade = $2, status = $3")).
		WithArgs("e-1", 85.0, models.EnrollmentStatusApproved, sqlmock.AnyArg(), models.EnrollmentStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateGrade(context.Background(), "e-1", 85, models.EnrollmentStatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnrollmentRepositoryUpdateGradeWithdrawnRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db, NewSeatLedger(nil))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET final_grade = $2, status = $3")).
		WithArgs("e-1", 85.0, models.EnrollmentStatusApproved, sqlmock.AnyArg(), models.EnrollmentStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateGrade(context.Background(), "e-1", 85, models.EnrollmentStatusApproved)
	require.NoError(t, err)
	assert.False(t, ok)
}

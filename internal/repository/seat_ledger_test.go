package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func seatRows(total, occupied int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"capacity_total", "capacity_occupied"}).AddRow(total, occupied)
}

func TestSeatLedgerReserve(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	ledger := NewSeatLedger(nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT capacity_total, capacity_occupied FROM courses WHERE id = $1 FOR UPDATE`)).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE courses SET capacity_occupied = capacity_occupied + 1, updated_at = NOW() WHERE id = $1`)).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Reserve(context.Background(), tx, "c-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerReserveFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	ledger := NewSeatLedger(nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(5, 5))
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	err = ledger.Reserve(context.Background(), tx, "c-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCapacityExceeded))
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerReserveCourseMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	ledger := NewSeatLedger(nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c-99").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	err = ledger.Reserve(context.Background(), tx, "c-99")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.NoError(t, tx.Rollback())
}

func TestSeatLedgerRelease(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	ledger := NewSeatLedger(nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE courses SET capacity_occupied = capacity_occupied - 1, updated_at = NOW() WHERE id = $1`)).
		WithArgs("c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(context.Background(), tx, "c-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLedgerReleaseClampsAtZero(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	ledger := NewSeatLedger(nil)

	// No UPDATE is issued when the counter is already zero.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(seatRows(10, 0))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(context.Background(), tx, "c-1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

package repository

import (
	"errors"

	"github.com/lib/pq"

	appErrors "github.com/ctcadmin/ctc-admin-api/pkg/errors"
)

// Postgres error codes this core cares about. Constraint violations that
// slip past application checks under concurrency are translated into the
// matching domain error instead of leaking raw database errors.
const (
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgLockNotAvailable  = "55P03"
	pgQueryCanceled     = "57014"
	pgSerializationFail = "40001"
	pgDeadlockDetected  = "40P01"
)

// translateDBError maps storage-layer failures onto the domain taxonomy.
// dupMessage overrides the generic duplicate message when a unique
// constraint fires.
func translateDBError(err error, dupMessage string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pgUniqueViolation:
		return appErrors.Clone(appErrors.ErrDuplicate, dupMessage)
	case pgCheckViolation:
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "course capacity constraint violated")
	case pgLockNotAvailable, pgQueryCanceled, pgSerializationFail, pgDeadlockDetected:
		return appErrors.Clone(appErrors.ErrContention, "")
	}
	return err
}

// isUniqueViolation reports whether err is a unique-constraint failure on
// the named constraint. An empty name matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"

	apperrors "github.com/openclaw/credit-ledger-go/internal/errors"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
	pqCheckViolation       = "23514"

	sqliteBusy   = 5
	sqliteLocked = 6
)

// sqliteError matches the driver's error type without importing it.
type sqliteError interface {
	error
	Code() int
}

// ClassifyError turns transient lock and serialization failures, and unique
// violations the ON CONFLICT clauses did not absorb, into a retryable
// StorageConflict. A check violation means a write slipped past validation
// and becomes a DatabaseError. Other errors are returned unchanged.
func ClassifyError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	if IsUniqueViolation(err) {
		return apperrors.StorageConflict(err)
	}
	if IsCheckViolation(err) {
		return apperrors.Database(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected:
			return apperrors.StorageConflict(err)
		}
		return err
	}

	var liteErr sqliteError
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return apperrors.StorageConflict(err)
		}
	}
	return err
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqCheckViolation
	}
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tuanvumaihuynh/stock-ledger/internal/apperr"
)

// PostgreSQL SQLSTATE codes the transaction helper reacts to.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// IsRetryable reports whether err aborted a transaction that can safely be
// re-run from the start.
func IsRetryable(err error) bool {
	code := sqlState(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// IsLockTimeout reports whether err is a lock_timeout expiry.
func IsLockTimeout(err error) bool {
	return sqlState(err) == codeLockNotAvailable
}

func classify(err error) error {
	if IsLockTimeout(err) {
		return apperr.StoreBusyErr.WrapParent(err)
	}
	return err
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the platform reacts to.
const (
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeQueryCanceled        = "57014"
)

// IsConflict reports whether err is a serialization failure or deadlock.
func IsConflict(err error) bool {
	return hasCode(err, CodeSerializationFailure, CodeDeadlockDetected)
}

// IsUnavailable reports whether err means the database could not be reached or the
// statement was killed by a server-side timeout.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if hasCode(err, CodeQueryCanceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func hasCode(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, code := range codes {
		if pgErr.Code == code {
			return true
		}
	}
	return false
}

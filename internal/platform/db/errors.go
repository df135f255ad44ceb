package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/labflow/labflow/internal/platform/apperror"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeInvalidTextRep       = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError translates a pgx error into the apperror taxonomy. entity and id
// are used for not-found and conflict messages.
func MapError(err error, entity string, id any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(entity, id)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return apperror.Conflict(entity, "already exists (%s)", pgErr.ConstraintName)
		case pgErr.Code == codeForeignKeyViolation:
			return apperror.Validation(entity, "references a missing record (%s)", pgErr.ConstraintName)
		case pgErr.Code == codeCheckViolation, pgErr.Code == codeNotNullViolation, pgErr.Code == codeInvalidTextRep:
			return apperror.Validation(entity, "%s", pgErr.Message)
		case pgErr.Code == codeSerializationFailure, pgErr.Code == codeDeadlockDetected:
			return apperror.Transient(entity, err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return apperror.Transient(entity, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperror.Transient(entity, err)
	}
	return err
}

// MapDeleteError is MapError for DELETE statements, where a foreign key
// violation means dependents still exist.
func MapDeleteError(err error, entity string, id any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return apperror.Conflict(entity, "%v is still referenced (%s)", id, pgErr.ConstraintName)
	}
	return MapError(err, entity, id)
}

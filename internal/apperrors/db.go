package apperrors

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes surfaced by the persistence layer.
const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgInvalidText         = "22P02"
	pgForeignKeyViolation = "23503"
)

// FromDB converts a pgx error into a typed error. Errors that are already
// typed, and unknown errors, are returned unchanged.
func FromDB(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound(notFound).Wrap(err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return DuplicateKey(fieldFromConstraint(pgErr.TableName, pgErr.ConstraintName)).Wrap(err)
	case pgInvalidText:
		return Cast("Invalid ID format").Wrap(err)
	case pgCheckViolation, pgNotNullViolation:
		return Validation("Validation Error").WithField(pgErr.ColumnName).Wrap(err)
	case pgForeignKeyViolation:
		return Validation("Referenced record does not exist").Wrap(err)
	}
	return err
}

// fieldFromConstraint turns "users_email_key" into "email".
func fieldFromConstraint(table, constraint string) string {
	field := strings.TrimPrefix(constraint, table+"_")
	for _, suffix := range []string{"_key", "_idx", "_unique"} {
		field = strings.TrimSuffix(field, suffix)
	}
	if field == "" {
		return "unknown"
	}
	return field
}

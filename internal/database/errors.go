package database

import (
	"errors"

	"github.com/BradenHooton/lockbox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories translate
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// MapPostgresError translates driver errors into model errors. A missing row
// becomes models.ErrNotFound; constraint failures become conflict or bad
// request. Anything else passes through unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return models.ErrConflict
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
		return models.ErrBadRequest
	case codeInvalidText:
		// a malformed uuid cannot match any row
		return models.ErrNotFound
	}
	return err
}

package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"transport-ledger-backend/internal/ledger"
)

// postgres SQLSTATE codes the ledger reacts to
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgUndefinedTable      = "42P01"
)

// classify turns store errors into ledger error kinds where one applies.
// Anything else is returned unchanged for the service to wrap.
func classify(entity string, id any, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ledger.NotFoundError{Entity: entity, ID: id}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &ledger.NotFoundError{Entity: "referenced record of " + entity, ID: id}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ledger.ConflictError{Entity: entity, ID: id, Reason: "already exists"}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return &ledger.NotFoundError{Entity: "referenced record of " + entity + " (" + pgErr.ConstraintName + ")", ID: id}
		case pgUniqueViolation:
			return &ledger.ConflictError{Entity: entity, ID: id, Reason: "already exists"}
		}
	}
	return err
}

// IsUndefinedTable reports whether err means the queried table has not been provisioned.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	return err != nil && strings.Contains(err.Error(), "no such table")
}

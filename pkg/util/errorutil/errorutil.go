package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes translated into client errors.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"

	// a malformed uuid literal; no row can carry it
	pgInvalidTextRepresentation = "22P02"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewInternalError keeps the underlying message so operators see the cause.
func NewInternalError(err error) error {
	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound reports whether err denotes a missing row or a NOT_FOUND domain error.
// An id postgres cannot parse counts as missing.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation {
		return true
	}
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.HTTPStatus == http.StatusNotFound
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPgError(pgErr)
	}
	return NewInternalError(err).(*DomainError)
}

func fromPgError(pgErr *pgconn.PgError) *DomainError {
	details := map[string]any{"pg_code": pgErr.Code}
	if pgErr.Detail != "" {
		details["detail"] = pgErr.Detail
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName != "" {
			details["constraint"] = pgErr.ConstraintName
		}
		return &DomainError{
			Code:       "CONFLICT",
			Message:    "a record with the same unique value already exists",
			HTTPStatus: http.StatusConflict,
			Details:    details,
			Err:        pgErr,
		}
	case pgForeignKeyViolation:
		return &DomainError{
			Code:       "INVALID_REFERENCE",
			Message:    "referenced record does not exist or is still in use",
			HTTPStatus: http.StatusBadRequest,
			Details:    details,
			Err:        pgErr,
		}
	case pgInvalidTextRepresentation:
		return &DomainError{
			Code:       "NOT_FOUND",
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    details,
			Err:        pgErr,
		}
	default:
		return &DomainError{
			Code:       pgErr.Code,
			Message:    pgErr.Message,
			HTTPStatus: http.StatusInternalServerError,
			Details:    details,
			Err:        pgErr,
		}
	}
}

// MapError converts any error to a DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// Package common defines the error taxonomy shared by the server layers of
// CardFlow. Callers should use errors.Is to match the sentinel kinds; the
// typed *Error additionally carries a machine-readable code that the HTTP
// boundary turns into a localized message.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrorBadRequest    = errors.New("bad request")
	ErrorValidation    = errors.New("validation error")
	ErrorRateLimited   = errors.New("rate limited")
	ErrorConfiguration = errors.New("configuration error")

	// Token errors (invalid or malformed JWT).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Code is a stable machine-readable error identifier returned to clients.
type Code string

const (
	CodeInvalidCredentials   Code = "AUTH_001"
	CodeEmailNotVerified     Code = "AUTH_002"
	CodeInvalidTwoFactorCode Code = "AUTH_003"
	CodeTokenExpired         Code = "AUTH_004"
	CodeAccountDisabled      Code = "AUTH_005"
	CodeSessionExpired       Code = "AUTH_006"
	CodeInvalidTempToken     Code = "AUTH_007"
	CodeNoTwoFactorCode      Code = "AUTH_008"
	CodeTwoFactorCodeExpired Code = "AUTH_009"
	CodeInvalidToken         Code = "AUTH_010"
	CodeTwoFactorEnabled     Code = "AUTH_011"
	CodeTwoFactorDisabled    Code = "AUTH_012"

	CodeUserNotFound    Code = "USER_001"
	CodeEmailExists     Code = "USER_002"
	CodeInvalidPassword Code = "USER_003"
	CodeUserDeleted     Code = "USER_004"

	CodeValidation  Code = "GEN_001"
	CodeForbidden   Code = "GEN_002"
	CodeNotFound    Code = "GEN_003"
	CodeRateLimited Code = "GEN_004"
	CodeInternal    Code = "GEN_005"
)

// Error is a domain failure with a kind (one of the sentinels above), a code
// and an English reason used in logs.
type Error struct {
	Kind   error
	Code   Code
	Reason string
}

// NewError builds an *Error of the given kind.
func NewError(kind error, code Code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

func (e *Error) Error() string {
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// CodeOf returns the code carried by err, or an empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

package services

import "github.com/dmitrijs2005/cardflow/internal/common"

var (
	ErrEmailTaken          = common.NewError(common.ErrorConflict, common.CodeEmailExists, "email already registered")
	ErrInvalidCredentials  = common.NewError(common.ErrorUnauthorized, common.CodeInvalidCredentials, "invalid credentials")
	ErrEmailNotVerified    = common.NewError(common.ErrorUnauthorized, common.CodeEmailNotVerified, "email not verified")
	ErrAccountUnavailable  = common.NewError(common.ErrorUnauthorized, common.CodeAccountDisabled, "user not found or inactive")
	ErrInvalidTempToken    = common.NewError(common.ErrorUnauthorized, common.CodeInvalidTempToken, "invalid or expired temporary token")
	ErrNoCodeIssued        = common.NewError(common.ErrorUnauthorized, common.CodeNoTwoFactorCode, "no 2FA code found")
	ErrInvalidCode         = common.NewError(common.ErrorUnauthorized, common.CodeInvalidTwoFactorCode, "invalid verification code")
	ErrCodeExpired         = common.NewError(common.ErrorUnauthorized, common.CodeTwoFactorCodeExpired, "verification code has expired")
	ErrSessionExpired      = common.NewError(common.ErrorUnauthorized, common.CodeSessionExpired, "session expired or revoked")
	ErrAccessTokenExpired  = common.NewError(common.ErrorUnauthorized, common.CodeTokenExpired, "access token expired")
	ErrInvalidAccessToken  = common.NewError(common.ErrorUnauthorized, common.CodeInvalidToken, "invalid access token")
	ErrInvalidToken        = common.NewError(common.ErrorBadRequest, common.CodeInvalidToken, "invalid or expired token")
	ErrVerificationExpired = common.NewError(common.ErrorBadRequest, common.CodeTokenExpired, "verification token has expired")
	ErrWeakPassword        = common.NewError(common.ErrorValidation, common.CodeValidation, "password does not meet strength requirements")
	ErrInvalidPassword     = common.NewError(common.ErrorUnauthorized, common.CodeInvalidPassword, "invalid password")
	ErrUserNotFound        = common.NewError(common.ErrorNotFound, common.CodeUserNotFound, "user not found")
	ErrSessionNotFound     = common.NewError(common.ErrorNotFound, common.CodeNotFound, "session not found")
	ErrTwoFactorEnabled    = common.NewError(common.ErrorBadRequest, common.CodeTwoFactorEnabled, "2FA is already enabled")
	ErrTwoFactorDisabled   = common.NewError(common.ErrorBadRequest, common.CodeTwoFactorDisabled, "2FA is not enabled")
)

package services

import "time"

// Lifetimes of every secret the auth core hands out. They are fixed and
// not configurable per call.
const (
	AccessTokenTTL       = 15 * time.Minute
	RefreshTokenTTL      = 7 * 24 * time.Hour
	SessionTTL           = RefreshTokenTTL
	TempTokenTTL         = 5 * time.Minute
	TwoFactorCodeTTL     = 10 * time.Minute
	VerificationTokenTTL = 24 * time.Hour
	PasswordResetTTL     = time.Hour
	TrialPeriod          = 14 * 24 * time.Hour
)

const (
	TwoFactorCodeDigits = 6
	TokenTypeBearer     = "Bearer"

	DefaultTimezone = "America/Mexico_City"
	DefaultLanguage = "es"

	// pendingToken fills a new session row until the signed tokens exist.
	pendingToken = "pending"
)

// Acknowledgements returned to clients. The enumeration-sensitive ones
// must not vary with the account state.
const (
	MsgRegistered         = "Registration successful. Please check your email to verify your account."
	MsgEmailVerified      = "Email verified successfully"
	MsgVerificationResent = "If an account exists, a verification email has been sent."
	MsgPasswordResetSent  = "If an account exists, a password reset email has been sent."
	MsgPasswordReset      = "Password reset successfully. Please login with your new password."
	MsgPasswordChanged    = "Password updated successfully. Please login again."
	MsgLoggedOut          = "Logged out successfully"
	MsgTwoFactorCodeSent  = "2FA code sent to your email"
	MsgTwoFactorEnabled   = "2FA enabled successfully"
	MsgTwoFactorDisabled  = "2FA disabled successfully"
	MsgSessionDeleted     = "Session deleted successfully"
	MsgAllSessionsDeleted = "All sessions deleted successfully"
	MsgAccountDeleted     = "Account deleted successfully"
)

// Auth event names used as metric labels.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventVerify2FA      = "verify_2fa"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventVerifyEmail    = "verify_email"
	EventPasswordReset  = "password_reset"
	EventPasswordChange = "password_change"
	EventAccountDelete  = "account_delete"
)

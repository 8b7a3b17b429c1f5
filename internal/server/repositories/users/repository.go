// Package users declares the user record store used by the auth core.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

// Repository persists users. Email lookups are case-insensitive; callers
// pass normalized addresses. Lookups return common.ErrorNotFound when the
// user is absent and updates return it when no row matched.
type Repository interface {
	// Create inserts the user and fills ID and timestamps. A duplicate email
	// yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// ListPendingVerification returns unverified, non-deleted users that
	// hold a verification token.
	ListPendingVerification(ctx context.Context) ([]*models.User, error)

	// ListActivePasswordResets returns active, non-deleted users whose reset
	// token expires after now.
	ListActivePasswordResets(ctx context.Context, now time.Time) ([]*models.User, error)

	SetTwoFactorCode(ctx context.Context, id string, code *string, expires *time.Time) error

	// ConsumeTwoFactorCode clears the pending code only while it still
	// equals code, so one issued code completes at most one login.
	ConsumeTwoFactorCode(ctx context.Context, id string, code string) error

	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
	SetEmailVerifyToken(ctx context.Context, id string, token *string, expires *time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetPasswordResetToken(ctx context.Context, id string, token *string, expires *time.Time) error

	// UpdatePassword replaces the hash and clears any pending reset token.
	UpdatePassword(ctx context.Context, id string, passwordHash string) error

	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	// Anonymize soft-deletes the user: personal data and secrets are
	// replaced, the account is deactivated and deleted_at is set.
	Anonymize(ctx context.Context, id string, at time.Time) error
}

// Package sessions declares the session store: one row per issued
// access/refresh token pair.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

// Repository persists sessions. Expiry is fixed at creation
// (ExpiresAt = CreatedAt + ttl) and never extended.
type Repository interface {
	// Create stores a session with a freshly generated id, created at now.
	Create(ctx context.Context, userID, token, refreshToken, userAgent, ipAddress string, now time.Time, ttl time.Duration) (*models.Session, error)

	// FindByID returns common.ErrorNotFound when the session is absent.
	FindByID(ctx context.Context, id string) (*models.Session, error)

	// UpdateTokens replaces both token strings of a session.
	UpdateTokens(ctx context.Context, id, token, refreshToken string) error

	// Delete removes one session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every session of userID.
	DeleteByUser(ctx context.Context, userID string) error

	// ListByUser returns the user's sessions still live at now, newest first.
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)
}

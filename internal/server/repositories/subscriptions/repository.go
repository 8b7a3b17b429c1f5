// Package subscriptions stores plans and per-user subscriptions. The auth
// core only opens trials at registration, cancels them at account deletion
// and reads them for the profile view.
package subscriptions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

type Repository interface {
	FindPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error)
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	// FindByUserID returns the subscription with its Plan populated.
	FindByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	// CancelForUser is a no-op when the user has no subscription.
	CancelForUser(ctx context.Context, userID string, at time.Time) error
}

package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindPlanByType(ctx context.Context, planType models.PlanType) (*models.Plan, error) {
	query := `SELECT id, name, type, max_cards FROM plans WHERE type = $1`

	p := &models.Plan{}
	if err := r.db.QueryRowContext(ctx, query, planType).Scan(&p.ID, &p.Name, &p.Type, &p.MaxCards); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	query := `
		INSERT INTO subscriptions (user_id, plan_id, status, trial_ends_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, sub.UserID, sub.PlanID, sub.Status, sub.TrialEndsAt).
		Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (r *PostgresRepository) FindByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `
		SELECT s.id, s.user_id, s.plan_id, s.status, s.trial_ends_at, s.cancelled_at, s.created_at,
		       p.name, p.type, p.max_cards
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1
	`
	s := &models.Subscription{Plan: &models.Plan{}}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.TrialEndsAt, &s.CancelledAt, &s.CreatedAt,
		&s.Plan.Name, &s.Plan.Type, &s.Plan.MaxCards)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.Plan.ID = s.PlanID
	return s, nil
}

func (r *PostgresRepository) CancelForUser(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE subscriptions SET status = $2, cancelled_at = $3
		WHERE user_id = $1 AND status <> $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, models.SubscriptionCancelled, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

// Profile is the caller's own account view. It never carries secrets.
type Profile struct {
	ID               string               `json:"id"`
	Email            string               `json:"email"`
	FirstName        string               `json:"firstName"`
	LastName         string               `json:"lastName"`
	Phone            *string              `json:"phone"`
	Role             models.Role          `json:"role"`
	IsEmailVerified  bool                 `json:"isEmailVerified"`
	TwoFactorEnabled bool                 `json:"twoFactorEnabled"`
	Timezone         string               `json:"timezone"`
	Language         string               `json:"language"`
	CompanyID        *string              `json:"companyId"`
	EmployeeOfID     *string              `json:"employeeOfId"`
	DepartmentID     *string              `json:"departmentId"`
	LastLoginAt      *time.Time           `json:"lastLoginAt"`
	CreatedAt        time.Time            `json:"createdAt"`
	Subscription     *SubscriptionSummary `json:"subscription"`
}

type SubscriptionSummary struct {
	ID          string                    `json:"id"`
	Status      models.SubscriptionStatus `json:"status"`
	TrialEndsAt *time.Time                `json:"trialEndsAt"`
	Plan        *PlanSummary              `json:"plan,omitempty"`
}

type PlanSummary struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     models.PlanType `json:"type"`
	MaxCards *int            `json:"maxCards"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

// CurrentUser returns the profile of userID with its subscription.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:               user.ID,
		Email:            user.Email,
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Phone:            user.Phone,
		Role:             user.Role,
		IsEmailVerified:  user.IsEmailVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		Timezone:         user.Timezone,
		Language:         user.Language,
		CompanyID:        user.CompanyID,
		EmployeeOfID:     user.EmployeeOfID,
		DepartmentID:     user.DepartmentID,
		LastLoginAt:      user.LastLoginAt,
		CreatedAt:        user.CreatedAt,
	}

	sub, err := s.repos.Subscriptions(s.db).FindByUserID(ctx, user.ID)
	switch {
	case err == nil:
		p.Subscription = &SubscriptionSummary{ID: sub.ID, Status: sub.Status, TrialEndsAt: sub.TrialEndsAt}
		if sub.Plan != nil {
			p.Subscription.Plan = &PlanSummary{ID: sub.Plan.ID, Name: sub.Plan.Name, Type: sub.Plan.Type, MaxCards: sub.Plan.MaxCards}
		}
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.internal(ctx, "find subscription", err)
	}

	return p, nil
}

// ChangePassword replaces the password after checking the current one.
// All sessions are dropped, including the caller's.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (msg string, err error) {
	defer s.observe(EventPasswordChange, &err)

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !s.hasher.Compare(currentPassword, user.PasswordHash) {
		return "", ErrInvalidPassword
	}
	if !credentials.ValidateStrength(newPassword) {
		return "", ErrWeakPassword
	}

	if err := s.replacePassword(ctx, user.ID, newPassword); err != nil {
		return "", err
	}
	return MsgPasswordChanged, nil
}

func (s *AuthService) Enable2FA(ctx context.Context, userID string) (string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.TwoFactorEnabled {
		return "", ErrTwoFactorEnabled
	}
	if err := s.repos.Users(s.db).SetTwoFactorEnabled(ctx, user.ID, true); err != nil {
		return "", s.internal(ctx, "enable 2fa", err)
	}
	return MsgTwoFactorEnabled, nil
}

// Disable2FA requires the account password.
func (s *AuthService) Disable2FA(ctx context.Context, userID, password string) (string, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.TwoFactorEnabled {
		return "", ErrTwoFactorDisabled
	}
	if !s.hasher.Compare(password, user.PasswordHash) {
		return "", ErrInvalidPassword
	}
	if err := s.repos.Users(s.db).SetTwoFactorEnabled(ctx, user.ID, false); err != nil {
		return "", s.internal(ctx, "disable 2fa", err)
	}
	return MsgTwoFactorDisabled, nil
}

// ListSessions returns the user's unexpired sessions, newest first, flagging
// the one identified by currentSessionID.
func (s *AuthService) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	list, err := s.repos.Sessions(s.db).ListByUser(ctx, userID, s.now())
	if err != nil {
		return nil, s.internal(ctx, "list sessions", err)
	}

	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionInfo{
			ID:        sess.ID,
			UserAgent: sess.UserAgent,
			IPAddress: sess.IPAddress,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
			Current:   sess.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession deletes one of the user's own sessions.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) (string, error) {
	repo := s.repos.Sessions(s.db)

	sess, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", ErrSessionNotFound
		}
		return "", s.internal(ctx, "find session", err)
	}
	if sess.UserID != userID {
		return "", ErrSessionNotFound
	}

	if err := repo.Delete(ctx, sess.ID); err != nil {
		return "", s.internal(ctx, "delete session", err)
	}
	return MsgSessionDeleted, nil
}

// DeleteAccount soft-deletes the account after checking the password:
// personal data is anonymized, sessions are removed and the subscription
// is cancelled, all in one transaction.
func (s *AuthService) DeleteAccount(ctx context.Context, userID, password string) (msg string, err error) {
	defer s.observe(EventAccountDelete, &err)

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !s.hasher.Compare(password, user.PasswordHash) {
		return "", ErrInvalidPassword
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).Anonymize(ctx, user.ID, now); err != nil {
			return fmt.Errorf("anonymize user: %w", err)
		}
		if err := s.repos.Sessions(tx).DeleteByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := s.repos.Subscriptions(tx).CancelForUser(ctx, user.ID, now); err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", s.internal(ctx, "delete account", err)
	}

	s.logger.Info(ctx, "account deleted", "user_id", user.ID)
	return MsgAccountDeleted, nil
}

// findUser loads a non-deleted user for the account operations.
func (s *AuthService) findUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internal(ctx, "find user", err)
	}
	if user.DeletedAt != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

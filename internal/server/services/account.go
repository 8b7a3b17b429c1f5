package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/cryptox"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/dmitrijs2005/cardflow/internal/server/mailer"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

// RegisterInput carries the sign-up form. Timezone and Language fall back
// to the service defaults when empty.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Timezone  string
	Language  string
}

type RegisterResult struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// Register creates an unverified INDIVIDUAL account with a trial
// subscription on the basic plan and mails the verification link.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *RegisterResult, err error) {
	defer s.observe(EventRegister, &err)

	email := common.NormalizeEmail(in.Email)

	_, err = s.repos.Users(s.db).FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.internal(ctx, "find user", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, "hash password", err)
	}

	verifyToken, sealed, err := s.newSealedToken(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	verifyExpires := now.Add(VerificationTokenTTL)
	trialEndsAt := now.Add(TrialPeriod)

	user := &models.User{
		Email:              email,
		PasswordHash:       hash,
		FirstName:          strings.TrimSpace(in.FirstName),
		LastName:           strings.TrimSpace(in.LastName),
		Phone:              in.Phone,
		Timezone:           orDefault(in.Timezone, DefaultTimezone),
		Language:           orDefault(in.Language, DefaultLanguage),
		Role:               models.RoleIndividual,
		IsActive:           true,
		EmailVerifyToken:   &sealed,
		EmailVerifyExpires: &verifyExpires,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repos.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created

		subs := s.repos.Subscriptions(tx)
		plan, err := subs.FindPlanByType(ctx, models.PlanBasic)
		if err != nil {
			return fmt.Errorf("find default plan: %w", err)
		}
		_, err = subs.Create(ctx, &models.Subscription{
			UserID:      created.ID,
			PlanID:      plan.ID,
			Status:      models.SubscriptionTrial,
			TrialEndsAt: &trialEndsAt,
		})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorConflict) {
			return nil, ErrEmailTaken
		}
		return nil, s.internal(ctx, "register", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	s.send(ctx, mailer.KindVerifyEmail, user.Email, map[string]string{
		mailer.DataFirstName: user.FirstName,
		mailer.DataToken:     verifyToken,
	})

	return &RegisterResult{Message: MsgRegistered, UserID: user.ID}, nil
}

// VerifyEmail marks the account holding token as verified. Tokens are
// stored sealed, so every pending account is checked.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (msg string, err error) {
	defer s.observe(EventVerifyEmail, &err)

	repo := s.repos.Users(s.db)
	pending, err := repo.ListPendingVerification(ctx)
	if err != nil {
		return "", s.internal(ctx, "list pending verifications", err)
	}

	for _, u := range pending {
		if !s.matchesToken(ctx, u.EmailVerifyToken, token) {
			continue
		}
		if u.EmailVerifyExpires == nil || s.now().After(*u.EmailVerifyExpires) {
			return "", ErrVerificationExpired
		}
		if err := repo.MarkEmailVerified(ctx, u.ID); err != nil {
			return "", s.internal(ctx, "mark email verified", err)
		}
		s.logger.Info(ctx, "email verified", "user_id", u.ID)
		return MsgEmailVerified, nil
	}

	return "", ErrInvalidToken
}

// ResendVerification issues a new verification link for an existing,
// unverified account. The reply is the same in every case.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (string, error) {
	repo := s.repos.Users(s.db)
	user, err := repo.FindByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return MsgVerificationResent, nil
		}
		return "", s.internal(ctx, "find user", err)
	}
	if user.IsEmailVerified || !user.CanAuthenticate() {
		return MsgVerificationResent, nil
	}

	token, sealed, err := s.newSealedToken(ctx)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(VerificationTokenTTL)
	if err := repo.SetEmailVerifyToken(ctx, user.ID, &sealed, &expires); err != nil {
		return "", s.internal(ctx, "store verification token", err)
	}

	s.send(ctx, mailer.KindVerifyEmail, user.Email, map[string]string{
		mailer.DataFirstName: user.FirstName,
		mailer.DataToken:     token,
	})
	return MsgVerificationResent, nil
}

// ForgotPassword mails a reset link to an existing account. The reply is
// the same in every case.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	repo := s.repos.Users(s.db)
	user, err := repo.FindByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return MsgPasswordResetSent, nil
		}
		return "", s.internal(ctx, "find user", err)
	}
	if !user.CanAuthenticate() {
		return MsgPasswordResetSent, nil
	}

	token, sealed, err := s.newSealedToken(ctx)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(PasswordResetTTL)
	if err := repo.SetPasswordResetToken(ctx, user.ID, &sealed, &expires); err != nil {
		return "", s.internal(ctx, "store reset token", err)
	}

	s.send(ctx, mailer.KindPasswordReset, user.Email, map[string]string{
		mailer.DataFirstName: user.FirstName,
		mailer.DataToken:     token,
	})
	return MsgPasswordResetSent, nil
}

// ResetPassword sets a new password for the account holding a live reset
// token and signs that account out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (msg string, err error) {
	defer s.observe(EventPasswordReset, &err)

	if !credentials.ValidateStrength(newPassword) {
		return "", ErrWeakPassword
	}

	candidates, err := s.repos.Users(s.db).ListActivePasswordResets(ctx, s.now())
	if err != nil {
		return "", s.internal(ctx, "list password resets", err)
	}

	var user *models.User
	for _, u := range candidates {
		if s.matchesToken(ctx, u.PasswordResetToken, token) {
			user = u
			break
		}
	}
	if user == nil {
		return "", ErrInvalidToken
	}

	if err := s.replacePassword(ctx, user.ID, newPassword); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return MsgPasswordReset, nil
}

// replacePassword stores the new hash and drops every session of the user
// in one transaction.
func (s *AuthService) replacePassword(ctx context.Context, userID, plain string) error {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return s.internal(ctx, "hash password", err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := s.repos.Sessions(tx).DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.internal(ctx, "replace password", err)
	}
	return nil
}

func (s *AuthService) newSealedToken(ctx context.Context) (token, sealed string, err error) {
	token, err = cryptox.GenerateSecureToken(cryptox.DefaultTokenBytes)
	if err != nil {
		return "", "", s.internal(ctx, "generate token", err)
	}
	sealed, err = s.sealToken(token)
	if err != nil {
		return "", "", s.internal(ctx, "seal token", err)
	}
	return token, sealed, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

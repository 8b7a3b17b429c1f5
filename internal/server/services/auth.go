// Package services contains server-side business logic. AuthService is the
// auth orchestrator: registration, credential checks, the login state
// machine with optional two-factor step, session issuance and rotation,
// email verification and password recovery, plus the account-security
// operations that touch the same state.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/cryptox"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/logging"
	"github.com/dmitrijs2005/cardflow/internal/server/auth"
	"github.com/dmitrijs2005/cardflow/internal/server/challenges"
	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/dmitrijs2005/cardflow/internal/server/mailer"
	"github.com/dmitrijs2005/cardflow/internal/server/metrics"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
	"github.com/dmitrijs2005/cardflow/internal/server/repositories/repomanager"
)

// SecretCodec seals short secrets at rest. *cryptox.Codec implements it.
type SecretCodec interface {
	Encrypt(plain string) (string, error)
	Decrypt(envelope string) (string, error)
}

// Dependencies are the collaborators of AuthService. Metrics and Now are
// optional.
type Dependencies struct {
	DB         dbx.DBTX
	Tx         dbx.Transactor
	Repos      repomanager.RepositoryManager
	Codec      SecretCodec
	Hasher     credentials.Hasher
	Challenges challenges.Store
	Mailer     mailer.Mailer
	Issuer     *auth.Issuer
	Logger     logging.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type AuthService struct {
	db         dbx.DBTX
	tx         dbx.Transactor
	repos      repomanager.RepositoryManager
	codec      SecretCodec
	hasher     credentials.Hasher
	challenges challenges.Store
	mailer     mailer.Mailer
	issuer     *auth.Issuer
	logger     logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewAuthService(d Dependencies) *AuthService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		db:         d.DB,
		tx:         d.Tx,
		repos:      d.Repos,
		codec:      d.Codec,
		hasher:     d.Hasher,
		challenges: d.Challenges,
		mailer:     d.Mailer,
		issuer:     d.Issuer,
		logger:     d.Logger.With("module", "auth_service"),
		metrics:    d.Metrics,
		now:        now,
	}
}

// TokenResult is returned by every operation that ends a login attempt.
// With Requires2FA set, both tokens are empty and TempToken identifies the
// pending challenge.
type TokenResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
	Requires2FA  bool   `json:"requires2FA"`
	TempToken    string `json:"tempToken,omitempty"`
}

// Principal is the authenticated caller behind an access token.
type Principal struct {
	UserID       string
	Email        string
	Role         models.Role
	CompanyID    *string
	EmployeeOfID *string
	DepartmentID *string
	SessionID    string
}

// ValidateCredentials returns the user when email and password match an
// active account and nil otherwise. It only fails on storage errors. A
// dummy comparison runs when no usable account exists so the response time
// does not reveal whether the email is registered.
func (s *AuthService) ValidateCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repos.Users(s.db).FindByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.CompareDummy(password)
			return nil, nil
		}
		return nil, s.internal(ctx, "find user", err)
	}

	if !user.CanAuthenticate() {
		s.hasher.CompareDummy(password)
		return nil, nil
	}
	if !s.hasher.Compare(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// Login continues a login attempt for a user whose credentials were
// checked. Users with two-factor enabled get a temp token and a mailed
// code instead of a session.
func (s *AuthService) Login(ctx context.Context, user *models.User, userAgent, ip string) (res *TokenResult, err error) {
	defer s.observe(EventLogin, &err)

	if !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}

	if user.TwoFactorEnabled {
		tempToken, err := cryptox.GenerateSecureToken(cryptox.DefaultTokenBytes)
		if err != nil {
			return nil, s.internal(ctx, "generate temp token", err)
		}
		if err := s.challenges.Put(ctx, tempToken, user.ID, TempTokenTTL); err != nil {
			return nil, s.internal(ctx, "store 2fa challenge", err)
		}
		if err := s.issue2FACode(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "2fa challenge issued", "user_id", user.ID)
		return &TokenResult{TokenType: TokenTypeBearer, Requires2FA: true, TempToken: tempToken}, nil
	}

	return s.issueTokens(ctx, user, userAgent, ip)
}

// Generate2FACode stores a fresh encrypted one-time code for the user and
// mails it.
func (s *AuthService) Generate2FACode(ctx context.Context, userID string) error {
	user, err := s.repos.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return ErrUserNotFound
		}
		return s.internal(ctx, "find user", err)
	}
	return s.issue2FACode(ctx, user)
}

// Request2FACode re-sends a code for a pending challenge.
func (s *AuthService) Request2FACode(ctx context.Context, tempToken string) (string, error) {
	user, err := s.pendingUser(ctx, tempToken)
	if err != nil {
		return "", err
	}
	if err := s.issue2FACode(ctx, user); err != nil {
		return "", err
	}
	return MsgTwoFactorCodeSent, nil
}

// Verify2FA completes a login attempt that stopped at the two-factor step.
// The temp token is single use.
func (s *AuthService) Verify2FA(ctx context.Context, tempToken, code, userAgent, ip string) (res *TokenResult, err error) {
	defer s.observe(EventVerify2FA, &err)

	user, err := s.pendingUser(ctx, tempToken)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorCode == nil || user.TwoFactorExpires == nil {
		return nil, ErrNoCodeIssued
	}

	stored, err := s.codec.Decrypt(*user.TwoFactorCode)
	if err != nil {
		return nil, s.internal(ctx, "decrypt 2fa code", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, ErrInvalidCode
	}
	if s.now().After(*user.TwoFactorExpires) {
		return nil, ErrCodeExpired
	}

	// a concurrent verify holding the same code loses here
	if err := s.repos.Users(s.db).ConsumeTwoFactorCode(ctx, user.ID, *user.TwoFactorCode); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidTempToken
		}
		return nil, s.internal(ctx, "clear 2fa code", err)
	}
	if err := s.challenges.Delete(ctx, tempToken); err != nil {
		// the code is already cleared, so the token cannot be replayed
		s.logger.Warn(ctx, "delete 2fa challenge failed", "user_id", user.ID, "error", err)
	}

	return s.issueTokens(ctx, user, userAgent, ip)
}

// RefreshTokens replaces the session with a new one and a new token pair.
// A session that is already gone is tolerated.
func (s *AuthService) RefreshTokens(ctx context.Context, userID, sessionID, userAgent, ip string) (res *TokenResult, err error) {
	defer s.observe(EventRefresh, &err)

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Sessions(tx).Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		var genErr error
		res, genErr = s.generateTokens(ctx, tx, user, userAgent, ip)
		return genErr
	})
	if err != nil {
		return nil, s.internal(ctx, "rotate session", err)
	}
	return res, nil
}

// RefreshWithToken validates a presented refresh token against its session
// and rotates it. A token that was already rotated no longer matches any
// session.
func (s *AuthService) RefreshWithToken(ctx context.Context, refreshToken, userAgent, ip string) (*TokenResult, error) {
	claims, err := s.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil, ErrSessionExpired
	}

	session, err := s.repos.Sessions(s.db).FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, s.internal(ctx, "find session", err)
	}

	if session.UserID != claims.Subject ||
		subtle.ConstantTimeCompare([]byte(session.RefreshToken), []byte(refreshToken)) != 1 ||
		session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}

	return s.RefreshTokens(ctx, claims.Subject, session.ID, userAgent, ip)
}

// Logout ends one session, or all of the user's sessions when sessionID is
// empty.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) (err error) {
	defer s.observe(EventLogout, &err)

	repo := s.repos.Sessions(s.db)
	if sessionID != "" {
		err = repo.Delete(ctx, sessionID)
	} else {
		err = repo.DeleteByUser(ctx, userID)
	}
	if err != nil {
		return s.internal(ctx, "delete sessions", err)
	}
	return nil
}

// Authenticate resolves an access token to its principal. The backing
// session must still exist, so logout takes effect before the token
// expires.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidAccessToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidAccessToken
	}

	session, err := s.repos.Sessions(s.db).FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, s.internal(ctx, "find session", err)
	}
	if session.UserID != claims.Subject || session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}

	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	return &Principal{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		CompanyID:    user.CompanyID,
		EmployeeOfID: user.EmployeeOfID,
		DepartmentID: user.DepartmentID,
		SessionID:    session.ID,
	}, nil
}

// --- helpers below ---

// issueTokens runs generateTokens in its own transaction.
func (s *AuthService) issueTokens(ctx context.Context, user *models.User, userAgent, ip string) (*TokenResult, error) {
	var res *TokenResult
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var genErr error
		res, genErr = s.generateTokens(ctx, tx, user, userAgent, ip)
		return genErr
	})
	if err != nil {
		return nil, s.internal(ctx, "issue tokens", err)
	}
	return res, nil
}

// generateTokens creates a session, signs the access and refresh tokens
// for it and writes them back onto the row.
func (s *AuthService) generateTokens(ctx context.Context, db dbx.DBTX, user *models.User, userAgent, ip string) (*TokenResult, error) {
	sessions := s.repos.Sessions(db)

	session, err := sessions.Create(ctx, user.ID, pendingToken, pendingToken, userAgent, ip, s.now(), SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	access, err := s.issuer.IssueAccess(user.ID, auth.AccessClaims{
		Email:        user.Email,
		Role:         string(user.Role),
		CompanyID:    user.CompanyID,
		EmployeeOfID: user.EmployeeOfID,
		DepartmentID: user.DepartmentID,
		SessionID:    session.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.issuer.IssueRefresh(user.ID, session.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := sessions.UpdateTokens(ctx, session.ID, access, refresh); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	if err := s.repos.Users(db).TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("touch last login: %w", err)
	}

	s.logger.Info(ctx, "session issued", "user_id", user.ID, "session_id", session.ID)

	return &TokenResult{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(AccessTokenTTL / time.Second),
		TokenType:    TokenTypeBearer,
	}, nil
}

func (s *AuthService) issue2FACode(ctx context.Context, user *models.User) error {
	code, err := cryptox.GenerateNumericCode(TwoFactorCodeDigits)
	if err != nil {
		return s.internal(ctx, "generate 2fa code", err)
	}
	sealed, err := s.codec.Encrypt(code)
	if err != nil {
		return s.internal(ctx, "encrypt 2fa code", err)
	}

	expires := s.now().Add(TwoFactorCodeTTL)
	if err := s.repos.Users(s.db).SetTwoFactorCode(ctx, user.ID, &sealed, &expires); err != nil {
		return s.internal(ctx, "store 2fa code", err)
	}

	s.send(ctx, mailer.KindTwoFactorCode, user.Email, map[string]string{
		mailer.DataFirstName: user.FirstName,
		mailer.DataCode:      code,
	})
	return nil
}

// pendingUser resolves a temp token to an active user.
func (s *AuthService) pendingUser(ctx context.Context, tempToken string) (*models.User, error) {
	userID, err := s.challenges.Get(ctx, tempToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrInvalidTempToken
		}
		return nil, s.internal(ctx, "read 2fa challenge", err)
	}
	return s.activeUser(ctx, userID)
}

// activeUser loads a user that may authenticate.
func (s *AuthService) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, ErrAccountUnavailable
		}
		return nil, s.internal(ctx, "find user", err)
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountUnavailable
	}
	return user, nil
}

// sealToken returns the at-rest form of a one-time token: the codec
// envelope of its SHA-256 hash.
func (s *AuthService) sealToken(token string) (string, error) {
	return s.codec.Encrypt(cryptox.HashToken(token))
}

// matchesToken reports whether sealed was produced by sealToken(token).
func (s *AuthService) matchesToken(ctx context.Context, sealed *string, token string) bool {
	if sealed == nil {
		return false
	}
	stored, err := s.codec.Decrypt(*sealed)
	if err != nil {
		s.logger.Warn(ctx, "undecryptable stored token", "error", err)
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(cryptox.HashToken(token))) == 1
}

// send hands a message to the mailer. Delivery problems never fail the
// calling operation.
func (s *AuthService) send(ctx context.Context, kind mailer.Kind, to string, data map[string]string) {
	if err := s.mailer.Send(ctx, kind, to, data); err != nil {
		s.logger.Warn(ctx, "mail dispatch failed", "kind", kind, "error", err)
	}
}

func (s *AuthService) internal(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, op+" failed", "error", err)
	return fmt.Errorf("%s: %w", op, common.ErrorInternal)
}

func (s *AuthService) observe(event string, err *error) {
	s.metrics.AuthEvent(event, *err)
}

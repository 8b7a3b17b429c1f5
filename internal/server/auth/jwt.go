// Package auth signs and verifies the JWTs handed to clients: a short-lived
// access token carrying the principal and a long-lived refresh token bound
// to a session. The two use different secrets.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the payload of an access token. Subject is the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string  `json:"email"`
	Role         string  `json:"role"`
	CompanyID    *string `json:"companyId"`
	EmployeeOfID *string `json:"employeeOfId"`
	DepartmentID *string `json:"departmentId"`
	SessionID    string  `json:"sid"`
}

// RefreshClaims is the payload of a refresh token. Subject is the user id.
type RefreshClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sessionId"`
}

// Issuer signs and parses both token kinds with HS256.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// IssueAccess signs c for userID with the access secret. Registered claims
// in c are replaced by the issuer.
func (i *Issuer) IssueAccess(userID string, c AccessClaims) (string, error) {
	c.RegisteredClaims = i.registered(userID, i.accessTTL)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.accessSecret)
}

func (i *Issuer) IssueRefresh(userID, sessionID string) (string, error) {
	c := RefreshClaims{
		RegisteredClaims: i.registered(userID, i.refreshTTL),
		SessionID:        sessionID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.refreshSecret)
}

func (i *Issuer) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refreshSecret); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return common.ErrInvalidToken
	}
	return nil
}

// Package mailer delivers the transactional emails of the auth core:
// address verification, password reset and two-factor codes.
package mailer

import (
	"context"
	"errors"
)

// Kind selects the template of an outgoing message.
type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindPasswordReset Kind = "password_reset"
	KindTwoFactorCode Kind = "two_factor_code"
)

// Data keys understood by the templates.
const (
	DataFirstName = "firstName"
	DataToken     = "token"
	DataCode      = "code"
)

var ErrUnknownKind = errors.New("unknown mail kind")

// Mailer sends one message of the given kind to recipient.
type Mailer interface {
	Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error
}

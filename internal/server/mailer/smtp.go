package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cardflow/internal/logging"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	FrontendURL string
}

// Configured reports whether enough settings are present to send.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	cfg    SMTPConfig
	dialer dialer
	logger logging.Logger
}

func NewSMTPMailer(cfg SMTPConfig, l logging.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		logger: l.With("module", "smtp_mailer"),
	}
}

func (m *SMTPMailer) Send(ctx context.Context, kind Kind, recipient string, data map[string]string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("empty recipient")
	}

	msg, err := render(m.cfg.FrontendURL, kind, data)
	if err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.cfg.From)
	gm.SetHeader("To", recipient)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.Body)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info(ctx, "email sent", "kind", kind, "to", recipient)
	return nil
}

// LogMailer stands in when SMTP is not configured. It records that a
// message would have been sent and drops it.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(l logging.Logger) *LogMailer {
	return &LogMailer{logger: l.With("module", "log_mailer")}
}

func (m *LogMailer) Send(ctx context.Context, kind Kind, recipient string, _ map[string]string) error {
	if _, ok := templates[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	m.logger.Warn(ctx, "smtp not configured, email dropped", "kind", kind, "to", recipient)
	return nil
}

// New picks the SMTP mailer when cfg is complete and the log mailer
// otherwise.
func New(cfg SMTPConfig, l logging.Logger) Mailer {
	if !cfg.Configured() {
		return NewLogMailer(l)
	}
	return NewSMTPMailer(cfg, l)
}

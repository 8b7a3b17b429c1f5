package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

type message struct {
	Subject string
	Body    string
}

type templateData struct {
	FirstName string
	Link      string
	Code      string
}

var templates = map[Kind]struct {
	subject string
	body    *template.Template
}{
	KindVerifyEmail: {
		subject: "Verifica tu correo electrónico",
		body: template.Must(template.New("verify_email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Bienvenido a CardFlow{{if .FirstName}}, {{.FirstName}}{{end}}</h2>
    <p>Confirma tu correo electrónico para activar tu cuenta:</p>
    <p><a href="{{.Link}}">Verificar correo</a></p>
    <p>El enlace es válido durante 24 horas.</p>
  </div>
</body>
</html>`)),
	},
	KindPasswordReset: {
		subject: "Restablece tu contraseña",
		body: template.Must(template.New("password_reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Restablecer contraseña</h2>
    <p>Recibimos una solicitud para restablecer tu contraseña:</p>
    <p><a href="{{.Link}}">Elegir nueva contraseña</a></p>
    <p>El enlace es válido durante 1 hora. Si no lo solicitaste, ignora este correo.</p>
  </div>
</body>
</html>`)),
	},
	KindTwoFactorCode: {
		subject: "Tu código de verificación",
		body: template.Must(template.New("two_factor_code").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Código de acceso</h2>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">{{.Code}}</div>
    <p>El código es válido durante 10 minutos.</p>
  </div>
</body>
</html>`)),
	},
}

// render builds the subject and HTML body for kind. Links point at the
// frontend, which posts the token back to the API.
func render(frontendURL string, kind Kind, data map[string]string) (*message, error) {
	t, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	td := templateData{FirstName: data[DataFirstName], Code: data[DataCode]}
	base := strings.TrimRight(frontendURL, "/")
	switch kind {
	case KindVerifyEmail:
		td.Link = base + "/verify-email?token=" + url.QueryEscape(data[DataToken])
	case KindPasswordReset:
		td.Link = base + "/reset-password?token=" + url.QueryEscape(data[DataToken])
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, td); err != nil {
		return nil, fmt.Errorf("render %s: %w", kind, err)
	}
	return &message{Subject: t.subject, Body: buf.String()}, nil
}

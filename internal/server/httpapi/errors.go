package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
	RequestID  string `json:"requestId,omitempty"`
}

// supported lists the message languages; the first one is the fallback.
var supported = []language.Tag{language.Spanish, language.English}

var matcher = language.NewMatcher(supported)

var messages = map[common.Code][2]string{
	common.CodeInvalidCredentials:   {"Email o contraseña incorrectos", "Invalid email or password"},
	common.CodeEmailNotVerified:     {"Por favor verifica tu email antes de continuar", "Please verify your email before continuing"},
	common.CodeInvalidTwoFactorCode: {"Código de verificación inválido o expirado", "Invalid or expired verification code"},
	common.CodeTokenExpired:         {"El token ha expirado", "The token has expired"},
	common.CodeAccountDisabled:      {"Tu cuenta ha sido desactivada", "Your account has been disabled"},
	common.CodeSessionExpired:       {"Tu sesión ha expirado", "Your session has expired"},
	common.CodeInvalidTempToken:     {"Token temporal inválido o expirado", "Invalid or expired temporary token"},
	common.CodeNoTwoFactorCode:      {"No hay un código 2FA pendiente. Solicita uno nuevo", "No 2FA code found. Please request a new one"},
	common.CodeTwoFactorCodeExpired: {"El código de verificación ha expirado", "The verification code has expired"},
	common.CodeInvalidToken:         {"Token inválido o expirado", "Invalid or expired token"},
	common.CodeTwoFactorEnabled:     {"La autenticación de dos factores ya está activada", "2FA is already enabled"},
	common.CodeTwoFactorDisabled:    {"La autenticación de dos factores no está activada", "2FA is not enabled"},
	common.CodeUserNotFound:         {"Usuario no encontrado", "User not found"},
	common.CodeEmailExists:          {"Este email ya está registrado", "This email is already registered"},
	common.CodeInvalidPassword:      {"La contraseña actual es incorrecta", "The current password is incorrect"},
	common.CodeUserDeleted:          {"Esta cuenta ha sido eliminada", "This account has been deleted"},
	common.CodeValidation:           {"Error de validación", "Validation error"},
	common.CodeForbidden:            {"No tienes permiso para realizar esta acción", "You are not allowed to perform this action"},
	common.CodeNotFound:             {"Recurso no encontrado", "Resource not found"},
	common.CodeRateLimited:          {"Demasiadas solicitudes. Intenta de nuevo más tarde", "Too many requests. Please try again later"},
	common.CodeInternal:             {"Error interno del servidor", "Internal server error"},
}

// localize returns the message for code in the best language of the
// Accept-Language header.
func localize(code common.Code, acceptLanguage string) string {
	tags, _, _ := language.ParseAcceptLanguage(acceptLanguage)
	_, idx, _ := matcher.Match(tags...)

	m, ok := messages[code]
	if !ok {
		m = messages[common.CodeInternal]
	}
	if idx < 0 || idx >= len(m) {
		idx = 0
	}
	return m[idx]
}

// classify maps an error to its HTTP status and client code.
func classify(err error) (int, common.Code) {
	code := common.CodeOf(err)

	var status int
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrorBadRequest):
		status = http.StatusBadRequest
		if code == "" {
			code = common.CodeValidation
		}
	case errors.Is(err, common.ErrorUnauthorized):
		status = http.StatusUnauthorized
		if code == "" {
			code = common.CodeInvalidToken
		}
	case errors.Is(err, common.ErrorNotFound):
		status = http.StatusNotFound
		if code == "" {
			code = common.CodeNotFound
		}
	case errors.Is(err, common.ErrorConflict):
		status = http.StatusConflict
		if code == "" {
			code = common.CodeEmailExists
		}
	case errors.Is(err, common.ErrorRateLimited):
		status = http.StatusTooManyRequests
		code = common.CodeRateLimited
	default:
		status = http.StatusInternalServerError
		code = common.CodeInternal
	}
	return status, code
}

// writeError aborts the request with the standard error body.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, errorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Code:       string(code),
		Message:    localize(code, c.GetHeader("Accept-Language")),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Path:       c.Request.URL.Path,
		RequestID:  c.GetString(requestIDKey),
	})
}

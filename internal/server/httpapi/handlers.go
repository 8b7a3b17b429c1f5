package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/server/services"
	"github.com/gin-gonic/gin"
)

var errRouteNotFound = common.NewError(common.ErrorNotFound, common.CodeNotFound, "route not found")

// bind decodes the JSON body into req and answers 400 when it does not
// validate.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, common.NewError(common.ErrorValidation, common.CodeValidation, err.Error()))
		return false
	}
	return true
}

func message(c *gin.Context, status int, msg string) {
	c.JSON(status, messageResponse{Message: msg})
}

func (s *Server) handleHealthz(c *gin.Context) {
	failed := s.probes.Check(c.Request.Context())
	if len(failed) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	checks := make(map[string]string, len(failed))
	for name, err := range failed {
		s.logger.Warn(c.Request.Context(), "readiness probe failed", "probe", name, "error", err)
		checks[name] = "unavailable"
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "checks": checks})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.auth.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
		Language:  req.Language,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := s.auth.ValidateCredentials(ctx, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	if user == nil {
		writeError(c, services.ErrInvalidCredentials)
		return
	}

	res, err := s.auth.Login(ctx, user, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleVerify2FA(c *gin.Context) {
	var req verify2FARequest
	if !bind(c, &req) {
		return
	}

	res, err := s.auth.Verify2FA(c.Request.Context(), req.TempToken, req.Code, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRequest2FACode(c *gin.Context) {
	var req tempTokenRequest
	if !bind(c, &req) {
		return
	}

	msg, err := s.auth.Request2FACode(c.Request.Context(), req.TempToken)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.auth.RefreshWithToken(c.Request.Context(), req.RefreshToken, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleVerifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}

	msg, err := s.auth.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleResendVerification(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}

	msg, err := s.auth.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bind(c, &req) {
		return
	}

	msg, err := s.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bind(c, &req) {
		return
	}

	msg, err := s.auth.ResetPassword(c.Request.Context(), req.Token, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleLogout(c *gin.Context) {
	p := principal(c)
	if err := s.auth.Logout(c.Request.Context(), p.UserID, p.SessionID); err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, services.MsgLoggedOut)
}

func (s *Server) handleLogoutAll(c *gin.Context) {
	p := principal(c)
	if err := s.auth.Logout(c.Request.Context(), p.UserID, ""); err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, services.MsgAllSessionsDeleted)
}

func (s *Server) handleMe(c *gin.Context) {
	p := principal(c)
	profile, err := s.auth.CurrentUser(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bind(c, &req) {
		return
	}

	p := principal(c)
	msg, err := s.auth.ChangePassword(c.Request.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleEnable2FA(c *gin.Context) {
	p := principal(c)
	msg, err := s.auth.Enable2FA(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleDisable2FA(c *gin.Context) {
	var req passwordRequest
	if !bind(c, &req) {
		return
	}

	p := principal(c)
	msg, err := s.auth.Disable2FA(c.Request.Context(), p.UserID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleListSessions(c *gin.Context) {
	p := principal(c)
	list, err := s.auth.ListSessions(c.Request.Context(), p.UserID, p.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleRevokeSession(c *gin.Context) {
	p := principal(c)
	msg, err := s.auth.RevokeSession(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	var req passwordRequest
	if !bind(c, &req) {
		return
	}

	p := principal(c)
	msg, err := s.auth.DeleteAccount(c.Request.Context(), p.UserID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	message(c, http.StatusOK, msg)
}

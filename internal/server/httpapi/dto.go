package httpapi

import (
	"sync"

	"github.com/dmitrijs2005/cardflow/internal/server/credentials"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type registerRequest struct {
	Email     string  `json:"email" binding:"required,email,max=255"`
	Password  string  `json:"password" binding:"required,password"`
	FirstName string  `json:"firstName" binding:"required,min=1,max=100"`
	LastName  string  `json:"lastName" binding:"required,min=1,max=100"`
	Phone     *string `json:"phone" binding:"omitempty,max=20"`
	Timezone  string  `json:"timezone" binding:"omitempty,max=50"`
	Language  string  `json:"language" binding:"omitempty,oneof=es en"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verify2FARequest struct {
	Code      string `json:"code" binding:"required,len=6,numeric"`
	TempToken string `json:"tempToken" binding:"required"`
}

type tempTokenRequest struct {
	TempToken string `json:"tempToken" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,password"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

var registerOnce sync.Once

// registerValidators adds the custom binding tags to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
			return credentials.ValidateStrength(fl.Field().String())
		})
	})
}

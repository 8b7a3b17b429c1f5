package models

import "time"

type Role string

const (
	RoleOwner      Role = "OWNER"
	RoleAdmin      Role = "ADMIN"
	RoleEmployee   Role = "EMPLOYEE"
	RoleIndividual Role = "INDIVIDUAL"
)

// User is a row of the users table. Nullable columns are pointers.
//
// TwoFactorCode, EmailVerifyToken and PasswordResetToken hold codec
// envelopes, never plaintext.
type User struct {
	ID                   string
	Email                string
	PasswordHash         string
	FirstName            string
	LastName             string
	Phone                *string
	Timezone             string
	Language             string
	Role                 Role
	IsEmailVerified      bool
	IsActive             bool
	DeletedAt            *time.Time
	TwoFactorEnabled     bool
	TwoFactorCode        *string
	TwoFactorExpires     *time.Time
	EmailVerifyToken     *string
	EmailVerifyExpires   *time.Time
	PasswordResetToken   *string
	PasswordResetExpires *time.Time
	LastLoginAt          *time.Time
	CompanyID            *string
	EmployeeOfID         *string
	DepartmentID         *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CanAuthenticate is false for deactivated and soft-deleted accounts.
func (u *User) CanAuthenticate() bool {
	return u != nil && u.IsActive && u.DeletedAt == nil
}

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/dbx"
	"github.com/dmitrijs2005/cardflow/internal/server/models"
)

// EmailConstraint is the unique index guarding against duplicate
// registrations that race past the pre-check.
const EmailConstraint = "users_email_lower_key"

const userColumns = `id, email, password_hash, first_name, last_name, phone, timezone, language, role,
	is_email_verified, is_active, deleted_at, two_factor_enabled, two_factor_code, two_factor_expires,
	email_verify_token, email_verify_expires, password_reset_token, password_reset_expires,
	last_login_at, company_id, employee_of_id, department_id, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &u.Timezone,
		&u.Language, &u.Role, &u.IsEmailVerified, &u.IsActive, &u.DeletedAt, &u.TwoFactorEnabled,
		&u.TwoFactorCode, &u.TwoFactorExpires, &u.EmailVerifyToken, &u.EmailVerifyExpires,
		&u.PasswordResetToken, &u.PasswordResetExpires, &u.LastLoginAt, &u.CompanyID, &u.EmployeeOfID,
		&u.DepartmentID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, timezone, language, role,
			is_email_verified, is_active, email_verify_token, email_verify_expires)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, user.Timezone,
		user.Language, user.Role, user.IsEmailVerified, user.IsActive, user.EmailVerifyToken,
		user.EmailVerifyExpires).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, EmailConstraint) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) ListPendingVerification(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE is_email_verified = false AND email_verify_token IS NOT NULL AND deleted_at IS NULL`
	return r.findMany(ctx, query)
}

func (r *PostgresRepository) ListActivePasswordResets(ctx context.Context, now time.Time) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE password_reset_token IS NOT NULL AND password_reset_expires > $1
			AND is_active AND deleted_at IS NULL`
	return r.findMany(ctx, query, now)
}

func (r *PostgresRepository) findMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetTwoFactorCode(ctx context.Context, id string, code *string, expires *time.Time) error {
	query := `UPDATE users SET two_factor_code = $2, two_factor_expires = $3, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, code, expires)
}

func (r *PostgresRepository) ConsumeTwoFactorCode(ctx context.Context, id string, code string) error {
	query := `UPDATE users SET two_factor_code = NULL, two_factor_expires = NULL, updated_at = now()
		WHERE id = $1 AND two_factor_code = $2`
	return r.execOne(ctx, query, id, code)
}

func (r *PostgresRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE users SET two_factor_enabled = $2, two_factor_code = NULL, two_factor_expires = NULL,
		updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, enabled)
}

func (r *PostgresRepository) SetEmailVerifyToken(ctx context.Context, id string, token *string, expires *time.Time) error {
	query := `UPDATE users SET email_verify_token = $2, email_verify_expires = $3, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, token, expires)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET is_email_verified = true, email_verify_token = NULL, email_verify_expires = NULL,
		updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) SetPasswordResetToken(ctx context.Context, id string, token *string, expires *time.Time) error {
	query := `UPDATE users SET password_reset_token = $2, password_reset_expires = $3, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, token, expires)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, password_reset_token = NULL, password_reset_expires = NULL,
		updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) Anonymize(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET
		email = 'deleted_' || id || '@deleted.local',
		first_name = 'Deleted',
		last_name = 'User',
		phone = NULL,
		password_hash = '',
		is_active = false,
		deleted_at = $2,
		two_factor_enabled = false,
		two_factor_code = NULL,
		two_factor_expires = NULL,
		email_verify_token = NULL,
		email_verify_expires = NULL,
		password_reset_token = NULL,
		password_reset_expires = NULL,
		updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Package auth_repo provides PostgreSQL implementations for auth repositories.
package auth_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/domain/auth"
	"gymbill/internal/infrastructure/storage/postgres"
)

// UserRepo implements auth.UserRepository.
type UserRepo struct {
	txManager *postgres.TxManager
}

// NewUserRepo creates a new user repository.
func NewUserRepo(txManager *postgres.TxManager) *UserRepo {
	return &UserRepo{txManager: txManager}
}

const userColumns = `id, email, password_hash, first_name, last_name,
	   is_active, is_admin, last_login_at, failed_login_attempts,
	   locked_until, created_at, updated_at, version`

func scanUser(row pgx.Row) (*auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.IsActive, &user.IsAdmin,
		&user.LastLoginAt, &user.FailedLoginAttempts, &user.LockedUntil,
		&user.CreatedAt, &user.UpdatedAt, &user.Version,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create creates a new user.
func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name,
			is_active, is_admin, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := q.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.IsActive, user.IsAdmin,
		user.CreatedAt, user.UpdatedAt, user.Version,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves user by ID.
func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("user", userID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(q.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

// Update updates user data with optimistic locking.
func (r *UserRepo) Update(ctx context.Context, user *auth.User) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		UPDATE users SET
			first_name = $2,
			last_name = $3,
			is_active = $4,
			is_admin = $5,
			last_login_at = $6,
			failed_login_attempts = $7,
			locked_until = $8,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $1 AND version = $9
	`

	result, err := q.Exec(ctx, query,
		user.ID, user.FirstName, user.LastName, user.IsActive, user.IsAdmin,
		user.LastLoginAt, user.FailedLoginAttempts, user.LockedUntil,
		user.Version,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("user", user.ID)
	}

	user.Version++
	return nil
}

// Exists checks if a user with the email exists.
func (r *UserRepo) Exists(ctx context.Context, email string) (bool, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := q.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}

	return exists, nil
}

// LoadRoles loads the user's role codes.
func (r *UserRepo) LoadRoles(ctx context.Context, userID id.ID) ([]string, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// LoadOrganizations loads the organization IDs the user may act on.
func (r *UserRepo) LoadOrganizations(ctx context.Context, userID id.ID) ([]string, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `SELECT organization_id FROM user_organizations WHERE user_id = $1`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	var orgIDs []string
	for rows.Next() {
		var orgID string
		if err := rows.Scan(&orgID); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		orgIDs = append(orgIDs, orgID)
	}

	return orgIDs, rows.Err()
}

// AssignRole grants a role code to the user.
func (r *UserRepo) AssignRole(ctx context.Context, userID id.ID, role string, grantedBy id.ID) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		INSERT INTO user_roles (user_id, role, granted_by)
		VALUES ($1, $2, NULLIF($3, '00000000-0000-0000-0000-000000000000'::uuid))
		ON CONFLICT (user_id, role) DO NOTHING
	`

	if _, err := q.Exec(ctx, query, userID, role, grantedBy); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	return nil
}

// RevokeRole removes a role code from the user.
func (r *UserRepo) RevokeRole(ctx context.Context, userID id.ID, role string) error {
	q := r.txManager.GetQuerier(ctx)

	query := `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`
	if _, err := q.Exec(ctx, query, userID, role); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	return nil
}

// Ensure interface compliance
var _ auth.UserRepository = (*UserRepo)(nil)

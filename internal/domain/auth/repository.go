package auth

import (
	"context"

	"gymbill/internal/core/id"
)

// UserRepository defines staff user storage operations.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves user by ID.
	GetByID(ctx context.Context, userID id.ID) (*User, error)

	// GetByEmail retrieves user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates user data.
	Update(ctx context.Context, user *User) error

	// Exists checks if a user with the email exists.
	Exists(ctx context.Context, email string) (bool, error)

	// LoadRoles loads the user's role codes.
	LoadRoles(ctx context.Context, userID id.ID) ([]string, error)

	// LoadOrganizations loads the organization IDs the user may act on.
	LoadOrganizations(ctx context.Context, userID id.ID) ([]string, error)

	// AssignRole grants a role code to the user.
	AssignRole(ctx context.Context, userID id.ID, role string, grantedBy id.ID) error

	// RevokeRole removes a role code from the user.
	RevokeRole(ctx context.Context, userID id.ID, role string) error
}

// TokenRepository defines refresh token storage operations.
type TokenRepository interface {
	// SaveRefreshToken persists a refresh token.
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token by its hash.
	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// RevokeRefreshToken marks a token as revoked.
	RevokeRefreshToken(ctx context.Context, tokenID id.ID, reason string) error

	// RevokeAllUserTokens revokes all tokens of a user.
	RevokeAllUserTokens(ctx context.Context, userID id.ID, reason string) error

	// DeleteExpired removes expired tokens (housekeeping).
	DeleteExpired(ctx context.Context) (int64, error)
}

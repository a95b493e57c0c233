package auth_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"gymbill/internal/core/apperror"
	"gymbill/internal/core/id"
	"gymbill/internal/domain/auth"
	"gymbill/internal/infrastructure/storage/postgres"
)

// TokenRepo implements auth.TokenRepository.
type TokenRepo struct {
	txManager *postgres.TxManager
}

// NewTokenRepo creates a new token repository.
func NewTokenRepo(txManager *postgres.TxManager) *TokenRepo {
	return &TokenRepo{txManager: txManager}
}

// SaveRefreshToken persists a refresh token.
func (r *TokenRepo) SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, expires_at, created_at, user_agent, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		token.ID, token.UserID, token.TokenHash,
		token.ExpiresAt, token.CreatedAt, token.UserAgent, token.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token by its hash.
func (r *TokenRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `
		SELECT id, user_id, token_hash, expires_at, created_at,
			   revoked_at, revoked_reason, user_agent, ip_address
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var token auth.RefreshToken
	err := q.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash,
		&token.ExpiresAt, &token.CreatedAt,
		&token.RevokedAt, &token.RevokedReason,
		&token.UserAgent, &token.IPAddress,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NewNotFound("refresh token", "")
	}
	if err != nil {
		return nil, fmt.Errorf("query refresh token: %w", err)
	}

	return &token, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *TokenRepo) RevokeRefreshToken(ctx context.Context, tokenID id.ID, reason string) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`

	if _, err := q.Exec(ctx, query, tokenID, time.Now().UTC(), reason); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeAllUserTokens revokes all tokens of a user.
func (r *TokenRepo) RevokeAllUserTokens(ctx context.Context, userID id.ID, reason string) error {
	q := r.txManager.GetQuerier(ctx)

	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2, revoked_reason = $3
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	if _, err := q.Exec(ctx, query, userID, time.Now().UTC(), reason); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}

	return nil
}

// DeleteExpired removes expired tokens.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	q := r.txManager.GetQuerier(ctx)

	result, err := q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return result.RowsAffected(), nil
}

// Ensure interface compliance
var _ auth.TokenRepository = (*TokenRepo)(nil)

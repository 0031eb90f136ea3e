package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/crypto"
)

// TokenRepo stores the single token row. Access and refresh tokens are
// encrypted with the configured crypto.Service before they are written.
type TokenRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

func NewTokenRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *TokenRepo {
	return &TokenRepo{pool: pool, crypto: cryptoSvc}
}

func (r *TokenRepo) Get(ctx context.Context) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord
	var accessEnc, refreshEnc string
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, access_token, refresh_token, expires_at, created_at
		FROM tokens
		ORDER BY created_at DESC
		LIMIT 1`).Scan(&rec.ID, &rec.UserID, &accessEnc, &refreshEnc, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if rec.AccessToken, err = r.crypto.Decrypt(accessEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if rec.RefreshToken, err = r.crypto.Decrypt(refreshEnc); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &rec, nil
}

func (r *TokenRepo) Replace(ctx context.Context, rec domain.TokenRecord) error {
	accessEnc, refreshEnc, err := r.encryptPair(rec.AccessToken, rec.RefreshToken)
	if err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM tokens`); err != nil {
		return fmt.Errorf("failed to delete previous tokens: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tokens (id, user_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, accessEnc, refreshEnc, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit token replacement: %w", err)
	}
	return nil
}

func (r *TokenRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	accessEnc, refreshEnc, err := r.encryptPair(accessToken, refreshToken)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE tokens SET access_token = $2, refresh_token = $3, expires_at = $4
		WHERE id = $1`,
		id, accessEnc, refreshEnc, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotAuthenticated
	}
	return nil
}

func (r *TokenRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM tokens`); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

func (r *TokenRepo) encryptPair(accessToken, refreshToken string) (string, string, error) {
	accessEnc, err := r.crypto.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshEnc, err := r.crypto.Encrypt(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return accessEnc, refreshEnc, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juicerq/witch/internal/domain"
)

const favoriteColumns = `id, channel_id, channel_login, channel_name, notify, created_at`

type FavoriteRepo struct {
	pool *pgxpool.Pool
}

func NewFavoriteRepo(pool *pgxpool.Pool) *FavoriteRepo {
	return &FavoriteRepo{pool: pool}
}

func (r *FavoriteRepo) List(ctx context.Context) ([]domain.Favorite, error) {
	return r.query(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY created_at, channel_login`)
}

func (r *FavoriteRepo) ListNotify(ctx context.Context) ([]domain.Favorite, error) {
	return r.query(ctx, `SELECT `+favoriteColumns+` FROM favorites WHERE notify ORDER BY created_at, channel_login`)
}

func (r *FavoriteRepo) Toggle(ctx context.Context, channelID, channelLogin, channelName string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM favorites WHERE channel_id = $1`, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to remove favorite: %w", err)
	}

	isFavorite := tag.RowsAffected() == 0
	if isFavorite {
		_, err = tx.Exec(ctx, `
			INSERT INTO favorites (id, channel_id, channel_login, channel_name)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), channelID, channelLogin, channelName)
		if err != nil {
			return false, fmt.Errorf("failed to insert favorite: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit favorite toggle: %w", err)
	}
	return isFavorite, nil
}

func (r *FavoriteRepo) SetNotify(ctx context.Context, channelID string, notify bool) (*domain.Favorite, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE favorites SET notify = $2
		WHERE channel_id = $1
		RETURNING `+favoriteColumns, channelID, notify)

	fav, err := scanFavorite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFavoriteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set favorite notify: %w", err)
	}
	return &fav, nil
}

func (r *FavoriteRepo) query(ctx context.Context, sql string) ([]domain.Favorite, error) {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}

	favorites, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Favorite, error) {
		return scanFavorite(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan favorites: %w", err)
	}
	return favorites, nil
}

func scanFavorite(row pgx.Row) (domain.Favorite, error) {
	var f domain.Favorite
	err := row.Scan(&f.ID, &f.ChannelID, &f.ChannelLogin, &f.ChannelName, &f.Notify, &f.CreatedAt)
	return f, err
}

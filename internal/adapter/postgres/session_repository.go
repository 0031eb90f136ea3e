package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juicerq/witch/internal/domain"
)

const sessionColumns = `id, channel_id, channel_login, started_at, ended_at, game_name, created_at`

// SessionRepo persists the stream session ledger.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) ListOpen(ctx context.Context) ([]domain.StreamSession, error) {
	return r.query(ctx, `SELECT `+sessionColumns+` FROM stream_sessions WHERE ended_at IS NULL`)
}

func (r *SessionRepo) Insert(ctx context.Context, s domain.StreamSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO stream_sessions (id, channel_id, channel_login, started_at, game_name)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.ChannelID, s.ChannelLogin, s.StartedAt, s.GameName)
	if err != nil {
		return fmt.Errorf("failed to insert stream session for %s: %w", s.ChannelID, err)
	}
	return nil
}

func (r *SessionRepo) Close(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE stream_sessions SET ended_at = $2
		WHERE id = $1 AND ended_at IS NULL`, id, endedAt)
	if err != nil {
		return fmt.Errorf("failed to close stream session %s: %w", id, err)
	}
	return nil
}

func (r *SessionRepo) ListByChannel(ctx context.Context, channelID string) ([]domain.StreamSession, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM stream_sessions
		WHERE channel_id = $1
		ORDER BY started_at, created_at`, channelID)
}

func (r *SessionRepo) History(ctx context.Context, channelID string, limit int) ([]domain.StreamSession, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+` FROM stream_sessions
		WHERE channel_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, channelID, limit)
}

func (r *SessionRepo) HistorySummaries(ctx context.Context, channelIDs []string) (map[string]domain.HistorySummary, error) {
	summaries := make(map[string]domain.HistorySummary, len(channelIDs))
	if len(channelIDs) == 0 {
		return summaries, nil
	}
	for _, id := range channelIDs {
		summaries[id] = domain.HistorySummary{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT channel_id, MAX(started_at), COUNT(*)
		FROM stream_sessions
		WHERE channel_id = ANY($1)
		GROUP BY channel_id`, channelIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stream history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			channelID  string
			lastOnline time.Time
			count      int
		)
		if err := rows.Scan(&channelID, &lastOnline, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stream history: %w", err)
		}
		summaries[channelID] = domain.HistorySummary{LastOnline: &lastOnline, StreamCount: count}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stream history: %w", err)
	}
	return summaries, nil
}

func (r *SessionRepo) query(ctx context.Context, sql string, args ...any) ([]domain.StreamSession, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream sessions: %w", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StreamSession, error) {
		var s domain.StreamSession
		err := row.Scan(&s.ID, &s.ChannelID, &s.ChannelLogin, &s.StartedAt, &s.EndedAt, &s.GameName, &s.CreatedAt)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stream sessions: %w", err)
	}
	return sessions, nil
}

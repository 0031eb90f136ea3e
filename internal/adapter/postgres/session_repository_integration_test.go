package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juicerq/witch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertSession(t *testing.T, repo *SessionRepo, channelID string, startedAt time.Time) domain.StreamSession {
	t.Helper()
	game := "Just Chatting"
	s := domain.StreamSession{
		ID:           uuid.New(),
		ChannelID:    channelID,
		ChannelLogin: "login_" + channelID,
		StartedAt:    startedAt,
		GameName:     &game,
	}
	require.NoError(t, repo.Insert(context.Background(), s))
	return s
}

func TestSessionRepo_InsertAndListOpen(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	s := insertSession(t, repo, "1", started)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, s.ID, open[0].ID)
	assert.True(t, started.Equal(open[0].StartedAt))
	assert.Nil(t, open[0].EndedAt)
	require.NotNil(t, open[0].GameName)
	assert.Equal(t, "Just Chatting", *open[0].GameName)
}

func TestSessionRepo_SecondOpenSessionRejected(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))
	started := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	insertSession(t, repo, "1", started)

	err := repo.Insert(context.Background(), domain.StreamSession{
		ID: uuid.New(), ChannelID: "1", ChannelLogin: "login_1", StartedAt: started.Add(time.Hour),
	})
	assert.Error(t, err)
}

func TestSessionRepo_CloseIsWriteOnce(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	s := insertSession(t, repo, "1", started)
	firstEnd := started.Add(30 * time.Minute)
	require.NoError(t, repo.Close(ctx, s.ID, firstEnd))
	require.NoError(t, repo.Close(ctx, s.ID, started.Add(2*time.Hour)))

	sessions, err := repo.ListByChannel(ctx, "1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndedAt)
	assert.True(t, firstEnd.Equal(*sessions[0].EndedAt))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSessionRepo_HistoryNewestFirstWithLimit(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	for i := range 3 {
		s := insertSession(t, repo, "1", base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, repo.Close(ctx, s.ID, s.StartedAt.Add(time.Hour)))
	}

	history, err := repo.History(ctx, "1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, base.Add(48*time.Hour).Equal(history[0].StartedAt))
	assert.True(t, base.Add(24*time.Hour).Equal(history[1].StartedAt))
}

func TestSessionRepo_HistorySummaries(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	s := insertSession(t, repo, "1", base)
	require.NoError(t, repo.Close(ctx, s.ID, base.Add(time.Hour)))
	insertSession(t, repo, "1", base.Add(24*time.Hour))

	summaries, err := repo.HistorySummaries(ctx, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, 2, summaries["1"].StreamCount)
	require.NotNil(t, summaries["1"].LastOnline)
	assert.True(t, base.Add(24*time.Hour).Equal(*summaries["1"].LastOnline))

	assert.Equal(t, 0, summaries["2"].StreamCount)
	assert.Nil(t, summaries["2"].LastOnline)
}

func TestSessionRepo_HistorySummariesEmptyInput(t *testing.T) {
	repo := NewSessionRepo(setupTestDB(t))

	summaries, err := repo.HistorySummaries(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

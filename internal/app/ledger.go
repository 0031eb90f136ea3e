package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/domain"
)

// ReconcileResult summarizes one ledger pass.
type ReconcileResult struct {
	Opened  int
	Closed  int
	Touched []string
}

// SessionLedger turns snapshots of live channels into open and closed
// stream sessions.
type SessionLedger struct {
	sessions domain.SessionRepository
	clock    clockwork.Clock
}

func NewSessionLedger(sessions domain.SessionRepository, clock clockwork.Clock) *SessionLedger {
	return &SessionLedger{sessions: sessions, clock: clock}
}

// Reconcile brings the ledger in line with live. A live channel without an
// open session gets one; a live channel whose started_at differs from its
// open session restarted, so the old session is closed and a new one opened.
// Open sessions of channels missing from live are closed. With a non-nil
// scope only channels inside scope are considered missing, since the caller
// never asked about the rest.
func (l *SessionLedger) Reconcile(ctx context.Context, live []domain.LiveStream, scope []string) (ReconcileResult, error) {
	var result ReconcileResult

	open, err := l.sessions.ListOpen(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list open sessions: %w", err)
	}

	openByChannel := make(map[string]domain.StreamSession, len(open))
	for _, s := range open {
		openByChannel[s.ChannelID] = s
	}

	now := l.clock.Now()
	liveIDs := make(map[string]struct{}, len(live))

	for _, stream := range live {
		liveIDs[stream.UserID] = struct{}{}

		existing, ok := openByChannel[stream.UserID]
		if ok && existing.StartedAt.Equal(stream.StartedAt) {
			continue
		}

		if ok {
			if err := l.sessions.Close(ctx, existing.ID, now); err != nil {
				return result, fmt.Errorf("failed to close restarted session of %s: %w", stream.UserID, err)
			}
			result.Closed++
			slog.DebugContext(ctx, "Stream restarted", "channel_id", stream.UserID, "previous_started_at", existing.StartedAt, "started_at", stream.StartedAt)
		}

		session := newSession(stream)
		if err := l.sessions.Insert(ctx, session); err != nil {
			return result, fmt.Errorf("failed to open session of %s: %w", stream.UserID, err)
		}
		openByChannel[stream.UserID] = session
		result.Opened++
		result.Touched = append(result.Touched, stream.UserID)
	}

	var inScope map[string]struct{}
	if scope != nil {
		inScope = make(map[string]struct{}, len(scope))
		for _, id := range scope {
			inScope[id] = struct{}{}
		}
	}

	for _, s := range open {
		if _, stillLive := liveIDs[s.ChannelID]; stillLive {
			continue
		}
		if inScope != nil {
			if _, ok := inScope[s.ChannelID]; !ok {
				continue
			}
		}

		if err := l.sessions.Close(ctx, s.ID, now); err != nil {
			return result, fmt.Errorf("failed to close session of %s: %w", s.ChannelID, err)
		}
		result.Closed++
		result.Touched = append(result.Touched, s.ChannelID)
	}

	return result, nil
}

func newSession(stream domain.LiveStream) domain.StreamSession {
	s := domain.StreamSession{
		ID:           uuid.New(),
		ChannelID:    stream.UserID,
		ChannelLogin: stream.UserLogin,
		StartedAt:    stream.StartedAt,
	}
	if stream.GameName != "" {
		game := stream.GameName
		s.GameName = &game
	}
	return s
}

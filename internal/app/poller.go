package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
	"github.com/juicerq/witch/internal/platform/correlation"
)

var ErrPollInProgress = errors.New("poll already in progress")

const (
	pollResultOK      = "ok"
	pollResultIdle    = "idle"
	pollResultError   = "error"
	pollResultStandby = "standby"
)

type tokenSource interface {
	GetValidToken(ctx context.Context) (*domain.TokenRecord, error)
}

// pollGate decides whether this instance is the one that polls. interval is
// the delay until the next Allow, so a lease can outlive it.
type pollGate interface {
	Allow(ctx context.Context, interval time.Duration) (bool, error)
}

type ledgerSink interface {
	Enqueue(ctx context.Context, live []domain.LiveStream, scope []string) bool
}

// Poller watches favorites with notifications enabled and publishes a
// FavoriteLive event whenever one of them goes live. Each run picks its own
// next delay, so settings changes apply from the following cycle.
type Poller struct {
	settings  domain.SettingsRepository
	tokens    tokenSource
	favorites domain.FavoriteRepository
	twitch    domain.TwitchAPI
	publisher domain.EventPublisher
	ledger    ledgerSink
	gate      pollGate
	clock     clockwork.Clock
	metrics   *metrics.PollerMetrics

	polling atomic.Bool
	// previous is the live set of the last run; nil means no baseline yet.
	previous map[string]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

type PollerDeps struct {
	Settings  domain.SettingsRepository
	Tokens    tokenSource
	Favorites domain.FavoriteRepository
	Twitch    domain.TwitchAPI
	Publisher domain.EventPublisher
	Ledger    ledgerSink
	// Gate is optional; without it every run polls.
	Gate    pollGate
	Clock   clockwork.Clock
	Metrics *metrics.PollerMetrics
}

func NewPoller(deps PollerDeps) *Poller {
	return &Poller{
		settings:  deps.Settings,
		tokens:    deps.Tokens,
		favorites: deps.Favorites,
		twitch:    deps.Twitch,
		publisher: deps.Publisher,
		ledger:    deps.Ledger,
		gate:      deps.Gate,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		stopCh:    make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or Stop is called. The next sleep starts
// only after the current run returns, so runs never overlap.
func (p *Poller) Run(ctx context.Context) {
	slog.InfoContext(ctx, "Notification poller started")
	for {
		delay, err := p.RunOnce(ctx)
		if err != nil {
			delay = domain.FallbackPollInterval
		}

		select {
		case <-p.clock.After(delay):
		case <-ctx.Done():
			slog.Info("Notification poller stopped", "reason", ctx.Err())
			return
		case <-p.stopCh:
			slog.Info("Notification poller stopped")
			return
		}
	}
}

func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// RunOnce performs a single poll and returns the delay until the next one.
// Failures are logged and answered with the 60s fallback delay.
func (p *Poller) RunOnce(ctx context.Context) (time.Duration, error) {
	if !p.polling.CompareAndSwap(false, true) {
		return 0, ErrPollInProgress
	}
	defer p.polling.Store(false)

	ctx = correlation.WithID(ctx, correlation.NewID())
	start := p.clock.Now()

	delay, result, err := p.poll(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Notification poll failed", "error", err)
		delay = domain.FallbackPollInterval
	}

	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues(result).Inc()
		p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	}
	slog.DebugContext(ctx, "Notification poll finished", "result", result, "next_in", delay)
	return delay, err
}

func (p *Poller) poll(ctx context.Context) (time.Duration, string, error) {
	rows, err := p.settings.All(ctx)
	if err != nil {
		return 0, pollResultError, fmt.Errorf("failed to read settings: %w", err)
	}
	settings := domain.SettingsFromRows(rows)
	interval := settings.PollInterval()

	if p.gate != nil {
		allowed, err := p.gate.Allow(ctx, interval)
		if err != nil {
			return 0, pollResultError, err
		}
		if !allowed {
			p.previous = nil
			return interval, pollResultStandby, nil
		}
	}

	token, err := p.tokens.GetValidToken(ctx)
	if err != nil {
		return 0, pollResultError, fmt.Errorf("failed to get token: %w", err)
	}
	if token == nil {
		p.previous = nil
		return interval, pollResultIdle, nil
	}

	favorites, err := p.favorites.ListNotify(ctx)
	if err != nil {
		return 0, pollResultError, fmt.Errorf("failed to list favorites: %w", err)
	}
	if len(favorites) == 0 {
		p.previous = nil
		return interval, pollResultIdle, nil
	}

	ids := make([]string, 0, len(favorites))
	for _, f := range favorites {
		ids = append(ids, f.ChannelID)
	}

	live, err := p.twitch.GetLiveStreams(ctx, token.AccessToken, ids)
	if err != nil {
		return 0, pollResultError, fmt.Errorf("failed to fetch live streams: %w", err)
	}

	current := make(map[string]struct{}, len(live))
	for _, s := range live {
		current[s.UserID] = struct{}{}
	}

	if p.previous != nil && settings.NotificationsOn() {
		p.notify(ctx, live)
	}
	p.previous = current

	if p.ledger != nil {
		p.ledger.Enqueue(ctx, live, ids)
	}
	return interval, pollResultOK, nil
}

func (p *Poller) notify(ctx context.Context, live []domain.LiveStream) {
	for _, stream := range live {
		if _, wasLive := p.previous[stream.UserID]; wasLive {
			continue
		}

		slog.InfoContext(ctx, "Favorite went live", "channel_id", stream.UserID, "channel_login", stream.UserLogin)
		if err := p.publisher.PublishFavoriteLive(ctx, domain.FavoriteLiveFromStream(stream)); err != nil {
			slog.WarnContext(ctx, "Failed to publish favorite live event", "channel_id", stream.UserID, "error", err)
			continue
		}
		if p.metrics != nil {
			p.metrics.Notifications.Inc()
		}
	}
}

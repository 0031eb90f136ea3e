package eventpublisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/juicerq/witch/internal/domain"
)

// EventPublisher implements domain.EventPublisher by handing each event to
// every configured sink, typically the in-process LiveHub and the websocket
// publisher. A failing sink does not stop the others.
type EventPublisher struct {
	sinks []domain.EventPublisher
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

func New(sinks ...domain.EventPublisher) *EventPublisher {
	return &EventPublisher{sinks: sinks}
}

func (ep *EventPublisher) PublishFavoriteLive(ctx context.Context, event domain.FavoriteLive) error {
	var errs []error
	for i, sink := range ep.sinks {
		if err := sink.PublishFavoriteLive(ctx, event); err != nil {
			slog.WarnContext(ctx, "Failed to publish favorite live event", "sink", i, "channel_id", event.UserID, "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("publish favorite live: %w", err)
	}
	return nil
}

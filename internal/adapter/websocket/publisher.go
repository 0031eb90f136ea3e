package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/centrifugal/centrifuge"
	"github.com/juicerq/witch/internal/adapter/metrics"
	"github.com/juicerq/witch/internal/domain"
)

// Publisher pushes FavoriteLive events to every connected websocket client.
type Publisher struct {
	node      *centrifuge.Node
	wsMetrics *metrics.WebSocketMetrics
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(node *centrifuge.Node, wsMetrics *metrics.WebSocketMetrics) *Publisher {
	return &Publisher{node: node, wsMetrics: wsMetrics}
}

func (p *Publisher) PublishFavoriteLive(_ context.Context, event domain.FavoriteLive) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal favorite live event: %w", err)
	}

	if _, err := p.node.Publish(FavoriteLiveChannel, data); err != nil {
		if p.wsMetrics != nil {
			p.wsMetrics.PublishFailures.Inc()
		}
		return fmt.Errorf("publish to channel %s: %w", FavoriteLiveChannel, err)
	}

	if p.wsMetrics != nil {
		p.wsMetrics.EventsPublished.Inc()
	}
	return nil
}

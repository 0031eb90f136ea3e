package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/juicerq/witch/internal/domain"
)

// LiveHub fans FavoriteLive events out to in-process subscribers. A slow
// subscriber whose buffer is full misses the event instead of blocking the
// poller.
type LiveHub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan domain.FavoriteLive
}

func NewLiveHub() *LiveHub {
	return &LiveHub{subs: make(map[int]chan domain.FavoriteLive)}
}

// Subscribe registers a listener. The returned func unsubscribes and closes
// the channel; calling it more than once is safe.
func (h *LiveHub) Subscribe(buffer int) (<-chan domain.FavoriteLive, func()) {
	ch := make(chan domain.FavoriteLive, max(buffer, 1))

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *LiveHub) PublishFavoriteLive(ctx context.Context, event domain.FavoriteLive) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			slog.WarnContext(ctx, "Subscriber buffer full, dropping event", "subscriber", id, "channel_id", event.UserID)
		}
	}
	return nil
}

func (h *LiveHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

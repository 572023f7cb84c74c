// Package notification fans processed-transaction events out to live subscribers.
package notification

import (
	"context"
	"sync"

	"settld/internal/domain"
	"settld/pkg/logger"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription receives events until Close is called.
type Subscription struct {
	ID     uuid.UUID
	Events <-chan domain.TransactionProcessed

	hub *Hub
	ch  chan domain.TransactionProcessed
}

// Close detaches the subscription from its hub and closes Events.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.ID)
}

// Hub is an in-process broadcaster. Publish never blocks on slow
// subscribers; an event that does not fit a subscriber's buffer is dropped
// for that subscriber only.
type Hub struct {
	logger logger.Logger
	buffer int

	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan domain.TransactionProcessed
}

func NewHub(log logger.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger:      log,
		buffer:      buffer,
		subscribers: make(map[uuid.UUID]chan domain.TransactionProcessed),
	}
}

func (h *Hub) Subscribe() *Subscription {
	ch := make(chan domain.TransactionProcessed, h.buffer)
	sub := &Subscription{ID: uuid.New(), Events: ch, hub: h, ch: ch}

	h.mu.Lock()
	h.subscribers[sub.ID] = ch
	h.mu.Unlock()

	h.logger.Debug("Stream subscriber added", map[string]interface{}{"subscriber_id": sub.ID.String()})
	return sub
}

func (h *Hub) unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if ok {
		close(ch)
		h.logger.Debug("Stream subscriber removed", map[string]interface{}{"subscriber_id": id.String()})
	}
}

// Subscribers returns the number of attached subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers event to every subscriber.
func (h *Hub) Publish(ctx context.Context, event domain.TransactionProcessed) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warn("Stream subscriber lagging, event dropped", map[string]interface{}{
				"subscriber_id":  id.String(),
				"transaction_id": event.TransactionID,
			})
		}
	}
	return nil
}

// Close detaches every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

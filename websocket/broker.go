package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Delivery is one event addressed to a room. Except skips every connection of that user.
type Delivery struct {
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Except uuid.UUID       `json:"except"`
}

// Broker moves deliveries between instances and keeps presence per room.
// Deliveries from one publisher reach the handler in publish order.
type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe installs the handler that receives every delivery, including this instance's own.
	Subscribe(handler func(Delivery))
	Join(ctx context.Context, room string, userID uuid.UUID) error
	Leave(ctx context.Context, room string, userID uuid.UUID) error
	Present(ctx context.Context, room string, userID uuid.UUID) (bool, error)
	Close() error
}

// LocalBroker serves a single instance.
type LocalBroker struct {
	mu       sync.RWMutex
	handler  func(Delivery)
	presence map[string]map[uuid.UUID]int
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{presence: make(map[string]map[uuid.UUID]int)}
}

func (b *LocalBroker) Publish(_ context.Context, d Delivery) error {
	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler != nil {
		handler(d)
	}
	return nil
}

func (b *LocalBroker) Subscribe(handler func(Delivery)) {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
}

func (b *LocalBroker) Join(_ context.Context, room string, userID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.presence[room] == nil {
		b.presence[room] = make(map[uuid.UUID]int)
	}
	b.presence[room][userID]++
	return nil
}

func (b *LocalBroker) Leave(_ context.Context, room string, userID uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	users := b.presence[room]
	if users == nil {
		return nil
	}
	users[userID]--
	if users[userID] <= 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(b.presence, room)
	}
	return nil
}

func (b *LocalBroker) Present(_ context.Context, room string, userID uuid.UUID) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.presence[room][userID] > 0, nil
}

func (b *LocalBroker) Close() error { return nil }

package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/logger"
)

const (
	deliveryBuffer  = 1024
	presenceTimeout = 2 * time.Second
)

func UserRoom(id uuid.UUID) string         { return "user:" + id.String() }
func ConversationRoom(id uuid.UUID) string { return "conversation:" + id.String() }

// Frame is the wire shape in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type membership struct {
	client *Client
	room   string
	join   bool
	// all removes the client from every room and closes it
	all  bool
	done chan struct{}
}

// Hub owns the room map. Run is the only goroutine that touches it, so deliveries leave in the
// order they were handed to the broker. Presence is recorded on the same goroutine, which keeps
// the broker's counts in step with the room map through shutdown.
type Hub struct {
	broker      Broker
	rooms       map[string]map[*Client]struct{}
	memberships chan membership
	deliveries  chan Delivery
	stopped     chan struct{}
}

func NewHub(broker Broker) *Hub {
	h := &Hub{
		broker:      broker,
		rooms:       make(map[string]map[*Client]struct{}),
		memberships: make(chan membership),
		deliveries:  make(chan Delivery, deliveryBuffer),
		stopped:     make(chan struct{}),
	}
	broker.Subscribe(h.enqueue)
	return h
}

func (h *Hub) enqueue(d Delivery) {
	select {
	case h.deliveries <- d:
	case <-h.stopped:
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case m := <-h.memberships:
			h.apply(m)
			close(m.done)
		case d := <-h.deliveries:
			h.deliver(d)
		}
	}
}

// shutdown releases presence for every membership the hub still holds, then closes the clients.
// Their later Unregister calls find the hub stopped and have nothing left to release.
func (h *Hub) shutdown() {
	for room, members := range h.rooms {
		for c := range members {
			h.remove(room, c)
			c.close()
		}
	}
}

func (h *Hub) apply(m membership) {
	if m.all {
		for room, members := range h.rooms {
			if _, ok := members[m.client]; ok {
				h.remove(room, m.client)
			}
		}
		m.client.close()
		return
	}

	members := h.rooms[m.room]
	_, present := members[m.client]
	switch {
	case m.join && !present:
		if members == nil {
			members = make(map[*Client]struct{})
			h.rooms[m.room] = members
		}
		members[m.client] = struct{}{}
		m.client.setRoom(m.room, true)
		h.presence(m.room, m.client, true)
	case !m.join && present:
		h.remove(m.room, m.client)
	}
}

func (h *Hub) remove(room string, c *Client) {
	members := h.rooms[room]
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	c.setRoom(room, false)
	h.presence(room, c, false)
}

// presence records one connection entering or leaving a room. It runs on the Run goroutine.
func (h *Hub) presence(room string, c *Client, join bool) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	var err error
	if join {
		err = h.broker.Join(ctx, room, c.UserID)
	} else {
		err = h.broker.Leave(ctx, room, c.UserID)
	}
	if err != nil {
		logger.Log.Warnw("failed to update presence", "room", room, "user_id", c.UserID, "join", join, "err", err)
	}
}

func (h *Hub) deliver(d Delivery) {
	members := h.rooms[d.Room]
	if len(members) == 0 {
		return
	}
	frame, err := json.Marshal(Frame{Event: d.Event, Data: d.Data})
	if err != nil {
		logger.Log.Errorw("failed to encode frame", "event", d.Event, "err", err)
		return
	}
	for c := range members {
		if d.Except != uuid.Nil && c.UserID == d.Except {
			continue
		}
		if !c.trySend(frame) {
			// Slow consumer. Closing the socket ends its read loop, which unregisters it.
			logger.Log.Warnw("dropping slow websocket client", "client_id", c.ID, "user_id", c.UserID)
			c.close()
		}
	}
}

func (h *Hub) request(ctx context.Context, m membership) {
	m.done = make(chan struct{})
	select {
	case h.memberships <- m:
	case <-h.stopped:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-m.done:
	case <-h.stopped:
	}
}

// Join adds the client to a room and records presence once per connection.
func (h *Hub) Join(ctx context.Context, c *Client, room string) {
	h.request(ctx, membership{client: c, room: room, join: true})
}

func (h *Hub) Leave(ctx context.Context, c *Client, room string) {
	h.request(ctx, membership{client: c, room: room})
}

// Unregister removes the client from every room and closes its send queue.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.request(ctx, membership{client: c, all: true})
	// A stopped hub has already released the client's rooms.
	c.close()
}

func (h *Hub) publish(ctx context.Context, room, event string, payload any, except uuid.UUID) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorw("failed to encode event payload", "event", event, "err", err)
		return
	}
	if err := h.broker.Publish(ctx, Delivery{Room: room, Event: event, Data: data, Except: except}); err != nil {
		logger.Log.Warnw("failed to publish event", "room", room, "event", event, "err", err)
	}
}

func (h *Hub) ToConversation(ctx context.Context, conversationID uuid.UUID, event string, payload any, except uuid.UUID) {
	h.publish(ctx, ConversationRoom(conversationID), event, payload, except)
}

func (h *Hub) ToUser(ctx context.Context, userID uuid.UUID, event string, payload any) {
	h.publish(ctx, UserRoom(userID), event, payload, uuid.Nil)
}

func (h *Hub) IsViewing(ctx context.Context, conversationID, userID uuid.UUID) bool {
	return h.present(ctx, ConversationRoom(conversationID), userID)
}

func (h *Hub) IsOnline(ctx context.Context, userID uuid.UUID) bool {
	return h.present(ctx, UserRoom(userID), userID)
}

func (h *Hub) present(ctx context.Context, room string, userID uuid.UUID) bool {
	ok, err := h.broker.Present(ctx, room, userID)
	if err != nil {
		logger.Log.Warnw("presence lookup failed", "room", room, "user_id", userID, "err", err)
		return false
	}
	return ok
}

package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/logger"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxFrameSize   = 64 * 1024
	sendBufferSize = 256
)

// Client is one websocket connection. A user may hold several.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Role   string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	rooms  map[string]struct{}

	events *rate.Limiter
	typing *rate.Limiter
}

func NewClient(conn *websocket.Conn, userID uuid.UUID, role string) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Role:   role,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]struct{}),
		events: rate.NewLimiter(rate.Limit(10), 20),
		typing: rate.NewLimiter(rate.Limit(2), 4),
	}
}

// trySend queues a frame without blocking. It reports false only when the queue is full.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Emit sends an event to this connection only.
func (c *Client) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorw("failed to encode event payload", "event", event, "err", err)
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		logger.Log.Errorw("failed to encode frame", "event", event, "err", err)
		return
	}
	if !c.trySend(frame) {
		logger.Log.Warnw("dropping slow websocket client", "client_id", c.ID, "user_id", c.UserID)
		c.close()
	}
}

func (c *Client) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Client) setRoom(room string, in bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if in {
		c.rooms[room] = struct{}{}
	} else {
		delete(c.rooms, room)
	}
}

// readPump blocks until the peer goes away or stops answering pings.
func (c *Client) readPump(handle func(Frame)) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debugw("websocket read ended", "client_id", c.ID, "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			c.Emit(events.Error, events.ErrorPayload{Error: "malformed frame", Code: string(apperrors.CodeValidation)})
			continue
		}
		handle(f)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Debugw("websocket write failed", "client_id", c.ID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/middleware"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/services"
)

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type sendMessageRequest struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	ContentType    string  `json:"contentType"`
	ReplyToID      *string `json:"replyToId"`
}

type reactRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// Gateway turns inbound socket events into service calls.
type Gateway struct {
	hub           *Hub
	conversations *services.ConversationService
	messages      *services.MessageService
	reactions     *services.ReactionService
	users         *services.UserService
}

func NewGateway(hub *Hub, conversations *services.ConversationService, messages *services.MessageService,
	reactions *services.ReactionService, users *services.UserService) *Gateway {
	return &Gateway{hub: hub, conversations: conversations, messages: messages, reactions: reactions, users: users}
}

// Handler must sit behind middleware.WebSocketAuth.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(g.serve, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})
}

func (g *Gateway) serve(conn *websocket.Conn) {
	userID, ok := conn.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok {
		_ = conn.Close()
		return
	}
	role, _ := conn.Locals(middleware.LocalRole).(string)
	ctx := context.Background()

	c := NewClient(conn, userID, role)
	g.hub.Join(ctx, c, UserRoom(userID))
	g.users.TouchLastOnline(ctx, userID)
	logger.Log.Infow("🔌 websocket connected", "client_id", c.ID, "user_id", userID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(func(f Frame) { g.dispatch(ctx, c, f) })

	g.hub.Unregister(ctx, c)
	<-writerDone
	g.users.TouchLastOnline(ctx, userID)
	logger.Log.Infow("websocket disconnected", "client_id", c.ID, "user_id", userID)
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, f Frame) {
	if f.Event == events.Typing || f.Event == events.StopTyping {
		if !c.typing.Allow() {
			return
		}
	} else if !c.events.Allow() {
		err := apperrors.Unavailable("slow down")
		if f.Event == events.SendMessage {
			req, _ := decodeSend(f)
			rejectSend(c, req, err)
			return
		}
		rejectEvent(c, f.Event, err)
		return
	}

	switch f.Event {
	case events.JoinConversation:
		g.joinConversation(ctx, c, f)
	case events.LeaveConversation:
		g.leaveConversation(ctx, c, f)
	case events.SendMessage:
		g.sendMessage(ctx, c, f)
	case events.Typing:
		g.typing(ctx, c, f, events.UserTyping)
	case events.StopTyping:
		g.typing(ctx, c, f, events.UserStopTyping)
	case events.ReactMessage:
		g.react(ctx, c, f)
	case events.MarkRead:
		g.markRead(ctx, c, f)
	default:
		rejectEvent(c, f.Event, apperrors.Validation("unknown event"))
	}
}

func rejectEvent(c *Client, event string, err error) {
	c.Emit(events.Error, events.ErrorPayload{
		Event: event,
		Error: apperrors.PublicMessage(err),
		Code:  string(apperrors.CodeOf(err)),
	})
}

func decodeConversation(f Frame) (uuid.UUID, error) {
	var ref conversationRef
	if err := json.Unmarshal(f.Data, &ref); err != nil {
		return uuid.Nil, apperrors.Validation("invalid payload")
	}
	id, err := uuid.Parse(ref.ConversationID)
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid conversationId")
	}
	return id, nil
}

// authorizeRoom checks membership unless the client already joined the room.
func (g *Gateway) authorizeRoom(ctx context.Context, c *Client, conversationID uuid.UUID) error {
	if c.InRoom(ConversationRoom(conversationID)) {
		return nil
	}
	_, err := g.conversations.Get(ctx, c.UserID, conversationID)
	return err
}

func (g *Gateway) joinConversation(ctx context.Context, c *Client, f Frame) {
	id, err := decodeConversation(f)
	if err == nil {
		_, err = g.conversations.Get(ctx, c.UserID, id)
	}
	if err != nil {
		rejectEvent(c, f.Event, err)
		return
	}
	g.hub.Join(ctx, c, ConversationRoom(id))
}

func (g *Gateway) leaveConversation(ctx context.Context, c *Client, f Frame) {
	id, err := decodeConversation(f)
	if err != nil {
		rejectEvent(c, f.Event, err)
		return
	}
	g.hub.Leave(ctx, c, ConversationRoom(id))
}

// decodeSend keeps whatever draft fields decoded, even when the payload as a whole is invalid.
func decodeSend(f Frame) (sendMessageRequest, error) {
	var req sendMessageRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		return req, apperrors.Validation("invalid payload")
	}
	return req, nil
}

// rejectSend answers a failed send with the draft so the client can restore it.
func rejectSend(c *Client, req sendMessageRequest, err error) {
	c.Emit(events.SendMessageError, events.SendMessageErrorPayload{
		ConversationID: req.ConversationID,
		Error:          apperrors.PublicMessage(err),
		Code:           string(apperrors.CodeOf(err)),
		Content:        req.Content,
		ContentType:    req.ContentType,
		ReplyToID:      req.ReplyToID,
	})
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, f Frame) {
	req, err := decodeSend(f)
	if err != nil {
		rejectSend(c, req, err)
		return
	}

	convID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		rejectSend(c, req, apperrors.Validation("invalid conversationId"))
		return
	}
	in := services.SendInput{
		ConversationID: convID,
		Content:        req.Content,
		ContentType:    models.ContentType(req.ContentType),
	}
	if req.ReplyToID != nil && *req.ReplyToID != "" {
		replyID, err := uuid.Parse(*req.ReplyToID)
		if err != nil {
			rejectSend(c, req, apperrors.Validation("invalid replyToId"))
			return
		}
		in.ReplyToID = &replyID
	}

	if _, err := g.messages.Send(ctx, c.UserID, in); err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternal {
			logger.Log.Errorw("send-message failed", "user_id", c.UserID, "conversation_id", convID, "err", err)
		}
		rejectSend(c, req, err)
	}
}

func (g *Gateway) typing(ctx context.Context, c *Client, f Frame, event string) {
	id, err := decodeConversation(f)
	if err != nil {
		return
	}
	if err := g.authorizeRoom(ctx, c, id); err != nil {
		rejectEvent(c, f.Event, err)
		return
	}
	g.hub.ToConversation(ctx, id, event, events.TypingPayload{ConversationID: id, UserID: c.UserID}, c.UserID)
}

func (g *Gateway) react(ctx context.Context, c *Client, f Frame) {
	var req reactRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		rejectEvent(c, f.Event, apperrors.Validation("invalid payload"))
		return
	}
	messageID, err := uuid.Parse(req.MessageID)
	if err != nil {
		rejectEvent(c, f.Event, apperrors.Validation("invalid messageId"))
		return
	}
	if _, err := g.reactions.Toggle(ctx, c.UserID, messageID, req.Emoji); err != nil {
		rejectEvent(c, f.Event, err)
	}
}

func (g *Gateway) markRead(ctx context.Context, c *Client, f Frame) {
	id, err := decodeConversation(f)
	if err != nil {
		rejectEvent(c, f.Event, err)
		return
	}
	if _, err := g.messages.MarkRead(ctx, c.UserID, id); err != nil {
		rejectEvent(c, f.Event, err)
	}
}

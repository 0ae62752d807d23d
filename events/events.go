// Package events names the live-channel event strings and the payloads
// that are shared between services and the websocket gateway.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/models"
)

// Inbound, sent by clients.
const (
	JoinConversation  = "join-conversation"
	LeaveConversation = "leave-conversation"
	SendMessage       = "send-message"
	Typing            = "typing"
	StopTyping        = "stop-typing"
	ReactMessage      = "react-message"
	MarkRead          = "mark-read"
)

// Outbound, sent by the server.
const (
	NewMessage          = "new-message"
	MessageNotification = "message-notification"
	MatchNotification   = "match-notification"
	Notification        = "notification"
	UserTyping          = "user-typing"
	UserStopTyping      = "user-stop-typing"
	MessagesRead        = "messages-read"
	MessageReaction     = "message-reaction"
	SendMessageError    = "send-message-error"
	Error               = "error"
)

type MessageNotificationPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	SenderID       uuid.UUID `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderPhotoURL *string   `json:"senderPhotoUrl"`
	Preview        string    `json:"preview"`
	ContentType    string    `json:"contentType"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
}

type MessagesReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ReaderID       uuid.UUID `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
	Count          int64     `json:"count"`
}

type SendMessageErrorPayload struct {
	ConversationID string  `json:"conversationId"`
	Error          string  `json:"error"`
	Code           string  `json:"code"`
	Content        string  `json:"content"`
	ContentType    string  `json:"contentType,omitempty"`
	ReplyToID      *string `json:"replyToId,omitempty"`
}

type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// PushPayload is what a native push notification renders.
type PushPayload struct {
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	URL            string     `json:"url,omitempty"`
}

type MatchNotificationPayload struct {
	MatchID   uuid.UUID            `json:"matchId"`
	User      models.PublicProfile `json:"user"`
	CreatedAt time.Time            `json:"createdAt"`
}

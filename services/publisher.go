package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/events"
)

// Publisher is the live channel as seen from the services. Every method is best-effort:
// delivery problems are logged by the implementation and never returned.
type Publisher interface {
	ToConversation(ctx context.Context, conversationID uuid.UUID, event string, payload any, except uuid.UUID)
	ToUser(ctx context.Context, userID uuid.UUID, event string, payload any)
	// IsViewing reports whether the user has a connection joined to the conversation room.
	IsViewing(ctx context.Context, conversationID, userID uuid.UUID) bool
	IsOnline(ctx context.Context, userID uuid.UUID) bool
}

// PushNotifier delivers native push notifications. Notify must not return before it is done,
// callers decide whether to run it in the background.
type PushNotifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, payload events.PushPayload)
}

type NopPublisher struct{}

func (NopPublisher) ToConversation(context.Context, uuid.UUID, string, any, uuid.UUID) {}
func (NopPublisher) ToUser(context.Context, uuid.UUID, string, any)                    {}
func (NopPublisher) IsViewing(context.Context, uuid.UUID, uuid.UUID) bool              { return false }
func (NopPublisher) IsOnline(context.Context, uuid.UUID) bool                          { return false }

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/testutil"
	"gorm.io/gorm"
)

type published struct {
	Room    string
	Target  uuid.UUID
	Event   string
	Payload any
	Except  uuid.UUID
}

type fakePublisher struct {
	mu      sync.Mutex
	sent    []published
	viewing map[uuid.UUID]map[uuid.UUID]bool
	online  map[uuid.UUID]bool
	// onViewing runs at the start of every IsViewing call.
	onViewing func(conversationID uuid.UUID)
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		viewing: map[uuid.UUID]map[uuid.UUID]bool{},
		online:  map[uuid.UUID]bool{},
	}
}

func (p *fakePublisher) ToConversation(_ context.Context, id uuid.UUID, event string, payload any, except uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{Room: "conversation", Target: id, Event: event, Payload: payload, Except: except})
}

func (p *fakePublisher) ToUser(_ context.Context, id uuid.UUID, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{Room: "user", Target: id, Event: event, Payload: payload})
}

func (p *fakePublisher) IsViewing(_ context.Context, conversationID, userID uuid.UUID) bool {
	if p.onViewing != nil {
		p.onViewing(conversationID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewing[conversationID][userID]
}

func (p *fakePublisher) IsOnline(_ context.Context, userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePublisher) setViewing(conversationID, userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.viewing[conversationID] == nil {
		p.viewing[conversationID] = map[uuid.UUID]bool{}
	}
	p.viewing[conversationID][userID] = true
}

func (p *fakePublisher) events(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.sent {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type pushCall struct {
	RecipientID uuid.UUID
	Payload     events.PushPayload
	HasDeadline bool
}

type fakePush struct {
	mu    sync.Mutex
	calls []pushCall
}

func (f *fakePush) Notify(ctx context.Context, recipientID uuid.UUID, payload events.PushPayload) {
	_, ok := ctx.Deadline()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{RecipientID: recipientID, Payload: payload, HasDeadline: ok})
}

func (f *fakePush) snapshot() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.calls...)
}

type testEnv struct {
	db            *gorm.DB
	pub           *fakePublisher
	push          *fakePush
	settings      *SettingsService
	users         *UserService
	notifications *NotificationService
	matches       *MatchService
	conversations *ConversationService
	messages      *MessageService
	reactions     *ReactionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	pub := newFakePublisher()
	push := &fakePush{}
	settings := NewSettingsService(db)
	notifications := NewNotificationService(db, pub)
	matches := NewMatchService(db, pub, notifications)

	return &testEnv{
		db:            db,
		pub:           pub,
		push:          push,
		settings:      settings,
		users:         NewUserService(db, pub),
		notifications: notifications,
		matches:       matches,
		conversations: NewConversationService(db, pub, matches),
		messages:      NewMessageService(db, pub, push, NewEligibilityChain(settings), time.Second),
		reactions:     NewReactionService(db, pub),
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/middleware"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/services"
	"github.com/motionapp/motion-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "gateway-test-secret"

type gatewayEnv struct {
	db            *gorm.DB
	hub           *Hub
	addr          string
	conversations *services.ConversationService
}

func startGateway(t *testing.T) *gatewayEnv {
	t.Helper()
	db := testutil.NewDB(t)
	hub := startHub(t, NewLocalBroker())

	settings := services.NewSettingsService(db)
	notifications := services.NewNotificationService(db, hub)
	matches := services.NewMatchService(db, hub, notifications)
	conversations := services.NewConversationService(db, hub, matches)
	messages := services.NewMessageService(db, hub, nil, services.NewEligibilityChain(settings), time.Second)
	reactions := services.NewReactionService(db, hub)
	users := services.NewUserService(db, hub)
	gw := NewGateway(hub, conversations, messages, reactions, users)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperrors.HTTPStatus(err)).JSON(fiber.Map{"error": apperrors.PublicMessage(err)})
		},
	})
	app.Get("/api/v1/ws", middleware.WebSocketAuth(testSecret), gw.Handler())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &gatewayEnv{db: db, hub: hub, addr: ln.Addr().String(), conversations: conversations}
}

func (e *gatewayEnv) dial(t *testing.T, user *models.User) *fastws.Conn {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, user.ID, user.Role, time.Hour)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := fastws.DefaultDialer.Dial("ws://"+e.addr+"/api/v1/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return e.hub.IsOnline(context.Background(), user.ID) },
		2*time.Second, 10*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *fastws.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: raw}))
}

// await reads frames until one with the wanted event arrives.
func await(t *testing.T, conn *fastws.Conn, event string) Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f Frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func TestGatewayRejectsHandshakeWithoutToken(t *testing.T) {
	env := startGateway(t)

	_, resp, err := fastws.DefaultDialer.Dial("ws://"+env.addr+"/api/v1/ws", nil)
	require.ErrorIs(t, err, fastws.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = fastws.DefaultDialer.Dial("ws://"+env.addr+"/api/v1/ws?token=not-a-jwt", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayMessagingRoundTrip(t *testing.T) {
	env := startGateway(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper, testutil.Premium)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	aliceConn := env.dial(t, alice)
	bobConn := env.dial(t, bob)

	emit(t, bobConn, events.SendMessage, map[string]any{"conversationId": conv.ID, "content": "are you up?"})
	toast := await(t, aliceConn, events.MessageNotification)
	var preview events.MessageNotificationPayload
	require.NoError(t, json.Unmarshal(toast.Data, &preview))
	assert.Equal(t, "are you up?", preview.Preview)
	assert.Equal(t, bob.ID, preview.SenderID)

	emit(t, aliceConn, events.JoinConversation, map[string]any{"conversationId": conv.ID})
	emit(t, bobConn, events.JoinConversation, map[string]any{"conversationId": conv.ID})
	require.Eventually(t, func() bool {
		return env.hub.IsViewing(ctx, conv.ID, alice.ID) && env.hub.IsViewing(ctx, conv.ID, bob.ID)
	}, 2*time.Second, 10*time.Millisecond)

	emit(t, bobConn, events.SendMessage, map[string]any{"conversationId": conv.ID, "content": "hello"})
	got := await(t, aliceConn, events.NewMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, bob.ID, msg.SenderID)
	await(t, bobConn, events.NewMessage)

	emit(t, bobConn, events.Typing, map[string]any{"conversationId": conv.ID})
	typing := await(t, aliceConn, events.UserTyping)
	assert.Contains(t, string(typing.Data), bob.ID.String())

	emit(t, aliceConn, events.ReactMessage, map[string]any{"messageId": msg.ID, "emoji": "🔥"})
	reaction := await(t, bobConn, events.MessageReaction)
	assert.Contains(t, string(reaction.Data), "🔥")

	emit(t, aliceConn, events.MarkRead, map[string]any{"conversationId": conv.ID})
	read := await(t, bobConn, events.MessagesRead)
	var receipt events.MessagesReadPayload
	require.NoError(t, json.Unmarshal(read.Data, &receipt))
	assert.Equal(t, alice.ID, receipt.ReaderID)
	assert.EqualValues(t, 2, receipt.Count)
}

func TestGatewaySendErrorRestoresDraft(t *testing.T) {
	env := startGateway(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	bobConn := env.dial(t, bob)
	replyTo := uuid.NewString()
	emit(t, bobConn, events.SendMessage, map[string]any{
		"conversationId": conv.ID,
		"content":        "let me pay later",
		"replyToId":      replyTo,
	})

	f := await(t, bobConn, events.SendMessageError)
	var payload events.SendMessageErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, string(apperrors.CodePaymentRequired), payload.Code)
	assert.Equal(t, "let me pay later", payload.Content)
	require.NotNil(t, payload.ReplyToID)
	assert.Equal(t, replyTo, *payload.ReplyToID)
	assert.Equal(t, conv.ID.String(), payload.ConversationID)
}

func TestGatewayRejectsOutsiders(t *testing.T) {
	env := startGateway(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	eve := testutil.CreateUser(t, env.db, "Eve", models.RoleBaddie)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	eveConn := env.dial(t, eve)
	emit(t, eveConn, events.JoinConversation, map[string]any{"conversationId": conv.ID})
	f := await(t, eveConn, events.Error)
	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, events.JoinConversation, payload.Event)
	assert.Equal(t, string(apperrors.CodeNotFound), payload.Code)
	assert.False(t, env.hub.IsViewing(ctx, conv.ID, eve.ID))

	emit(t, eveConn, "dance", map[string]any{})
	f = await(t, eveConn, events.Error)
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, string(apperrors.CodeValidation), payload.Code)
}

func TestGatewayDisconnectClearsPresence(t *testing.T) {
	env := startGateway(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)

	conn := env.dial(t, alice)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return !env.hub.IsOnline(ctx, alice.ID) }, 2*time.Second, 10*time.Millisecond)

	var stored models.User
	require.NoError(t, env.db.First(&stored, "id = ?", alice.ID).Error)
	assert.NotNil(t, stored.LastOnline)
}

func TestGatewayThrottledSendsKeepTheDraft(t *testing.T) {
	env := startGateway(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	bobConn := env.dial(t, bob)
	const burst = 40
	for i := 0; i < burst; i++ {
		emit(t, bobConn, events.SendMessage, map[string]any{"conversationId": conv.ID, "content": "draft"})
	}

	counts := map[string]int{}
	codes := map[string]int{}
	require.NoError(t, bobConn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for i := 0; i < burst; i++ {
		var f Frame
		require.NoError(t, bobConn.ReadJSON(&f))
		counts[f.Event]++
		var payload events.SendMessageErrorPayload
		require.NoError(t, json.Unmarshal(f.Data, &payload))
		assert.Equal(t, "draft", payload.Content)
		codes[payload.Code]++
	}
	assert.Equal(t, map[string]int{events.SendMessageError: burst}, counts)
	assert.Positive(t, codes[string(apperrors.CodeUnavailable)], "the limiter turned some sends away")
}

func TestGatewayMalformedSendKeepsTheDraft(t *testing.T) {
	env := startGateway(t)
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	conn := env.dial(t, alice)

	raw := json.RawMessage(`{"conversationId": 42, "content": "half typed"}`)
	require.NoError(t, conn.WriteJSON(Frame{Event: events.SendMessage, Data: raw}))

	f := await(t, conn, events.SendMessageError)
	var payload events.SendMessageErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, string(apperrors.CodeValidation), payload.Code)
	assert.Equal(t, "half typed", payload.Content)
}

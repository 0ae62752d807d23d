package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOrGetRequiresMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)

	_, _, err := env.conversations.StartOrGet(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, created, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := env.conversations.StartOrGet(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv.ID, again.ID)
}

func TestConcurrentStartOrGetConverges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)

	const callers = 10
	ids := make([]uuid.UUID, callers)
	created := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, c, err := env.conversations.StartOrGet(ctx, a, b)
			errs[i], created[i] = err, c
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)

	var count int64
	require.NoError(t, env.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetHidesConversationFromOutsiders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	eve := testutil.CreateUser(t, env.db, "Eve", models.RoleBaddie)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	got, err := env.conversations.Get(ctx, bob.ID, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = env.conversations.Get(ctx, eve.ID, conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = env.conversations.Get(ctx, alice.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListConversationsSummaries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper, testutil.Premium)
	carl := testutil.CreateUser(t, env.db, "Carl", models.RoleStepper, testutil.Premium)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	testutil.CreateMatch(t, env.db, alice.ID, carl.ID)
	env.pub.online[carl.ID] = true

	withBob, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarl, _, err := env.conversations.StartOrGet(ctx, alice.ID, carl.ID)
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, carl.ID, SendInput{ConversationID: withCarl.ID, Content: "first"})
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, bob.ID, SendInput{ConversationID: withBob.ID, Content: "one"})
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, bob.ID, SendInput{ConversationID: withBob.ID, Content: "two"})
	require.NoError(t, err)

	summaries, err := env.conversations.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, withBob.ID, summaries[0].ID, "most recent activity first")
	assert.Equal(t, bob.ID, summaries[0].OtherUser.ID)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "two", summaries[0].LastMessage.Content)
	assert.EqualValues(t, 2, summaries[0].UnreadCount)

	assert.Equal(t, withCarl.ID, summaries[1].ID)
	assert.True(t, summaries[1].OtherUser.IsOnline)
	assert.EqualValues(t, 1, summaries[1].UnreadCount)

	total, err := env.conversations.UnreadTotal(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	total, err = env.conversations.UnreadTotal(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListConversationsWithoutMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	_, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	summaries, err := env.conversations.List(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].LastMessage)
	assert.Zero(t, summaries[0].UnreadCount)
}

func TestDeleteConversationKeepsMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper, testutil.Premium)
	eve := testutil.CreateUser(t, env.db, "Eve", models.RoleBaddie)
	testutil.CreateMatch(t, env.db, alice.ID, bob.ID)
	conv, _, err := env.conversations.StartOrGet(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = env.messages.Send(ctx, bob.ID, SendInput{ConversationID: conv.ID, Content: "hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, env.conversations.Delete(ctx, eve.ID, conv.ID), apperrors.ErrNotFound)
	require.NoError(t, env.conversations.Delete(ctx, alice.ID, conv.ID))
	assert.ErrorIs(t, env.conversations.Delete(ctx, alice.ID, conv.ID), apperrors.ErrNotFound)

	var msgs int64
	require.NoError(t, env.db.Model(&models.Message{}).Count(&msgs).Error)
	assert.Zero(t, msgs)

	matched, err := env.matches.IsMatched(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, matched)
}

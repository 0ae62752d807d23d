package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)

	_, err := env.notifications.Create(ctx, alice.ID, NotificationInput{Type: models.NotificationMove})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	first, err := env.notifications.Create(ctx, alice.ID, NotificationInput{
		Type:  models.NotificationProfileView,
		Title: "Someone viewed your profile",
		Data:  map[string]any{"viewerId": uuid.NewString()},
	})
	require.NoError(t, err)
	_, err = env.notifications.Create(ctx, alice.ID, NotificationInput{Type: models.NotificationMove, Title: "New move"})
	require.NoError(t, err)

	pushed := env.pub.events(events.Notification)
	require.Len(t, pushed, 2)
	assert.Equal(t, alice.ID, pushed[0].Target)

	list, err := env.notifications.List(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Contains(t, string(list[1].Data)+string(list[0].Data), "viewerId")

	count, err := env.notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, env.notifications.MarkRead(ctx, alice.ID, first.ID))
	require.NoError(t, env.notifications.MarkRead(ctx, alice.ID, first.ID))
	assert.ErrorIs(t, env.notifications.MarkRead(ctx, alice.ID, uuid.New()), apperrors.ErrNotFound)

	bob := testutil.CreateUser(t, env.db, "Bob", models.RoleStepper)
	assert.ErrorIs(t, env.notifications.MarkRead(ctx, bob.ID, first.ID), apperrors.ErrNotFound)

	n, err := env.notifications.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	count, err = env.notifications.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateOnceDeduplicatesUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	in := NotificationInput{Type: models.NotificationSuggestion, Action: "complete_profile", Title: "Finish your profile"}

	n, created, err := env.notifications.CreateOnce(ctx, alice.ID, in)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = env.notifications.CreateOnce(ctx, alice.ID, in)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, env.notifications.MarkRead(ctx, alice.ID, n.ID))
	_, created, err = env.notifications.CreateOnce(ctx, alice.ID, in)
	require.NoError(t, err)
	assert.True(t, created, "a read notification no longer blocks a new one")

	_, _, err = env.notifications.CreateOnce(ctx, alice.ID, NotificationInput{Type: models.NotificationSuggestion, Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNotificationListLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)
	for i := 0; i < 5; i++ {
		_, err := env.notifications.Create(ctx, alice.ID, NotificationInput{Type: models.NotificationStory, Title: "story"})
		require.NoError(t, err)
	}

	list, err := env.notifications.List(ctx, alice.ID, 3)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "newest first")
	}
}

func TestPurgeReadKeepsUnreadAndRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, env.db, "Alice", models.RoleBaddie)

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	readAt := old.Add(time.Hour)
	require.NoError(t, env.db.Create(&models.Notification{UserID: alice.ID, Type: models.NotificationMove, Title: "old read", ReadAt: &readAt, CreatedAt: old}).Error)
	require.NoError(t, env.db.Create(&models.Notification{UserID: alice.ID, Type: models.NotificationMove, Title: "old unread", CreatedAt: old}).Error)
	fresh, err := env.notifications.Create(ctx, alice.ID, NotificationInput{Type: models.NotificationMove, Title: "fresh"})
	require.NoError(t, err)
	require.NoError(t, env.notifications.MarkRead(ctx, alice.ID, fresh.ID))

	n, err := env.notifications.PurgeRead(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&left).Error)
	assert.EqualValues(t, 2, left)
}

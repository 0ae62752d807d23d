package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// onceBefore runs fn inside the statement's own transaction just before the first matching
// statement on table executes.
func onceBefore(t *testing.T, db *gorm.DB, op, table string, fn func(tx *gorm.DB)) *atomic.Bool {
	t.Helper()
	armed := &atomic.Bool{}
	hook := func(stmt *gorm.DB) {
		if stmt.Statement.Table != table || !armed.CompareAndSwap(true, false) {
			return
		}
		fn(stmt.Session(&gorm.Session{NewDB: true}))
	}
	var err error
	switch op {
	case "update":
		err = db.Callback().Update().Before("gorm:update").Register("test:before_update_"+table, hook)
	case "query":
		err = db.Callback().Query().Before("gorm:query").Register("test:before_query_"+table, hook)
	default:
		t.Fatalf("unsupported op %s", op)
	}
	require.NoError(t, err)
	return armed
}

func TestSendLosesRaceWithUnmatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := matchedPair(t, env)

	armed := onceBefore(t, env.db, "update", "conversations", func(tx *gorm.DB) {
		require.NoError(t, deleteConversationTree(tx, p.conv.ID))
	})
	armed.Store(true)

	msg, err := env.messages.Send(ctx, p.bob.ID, SendInput{ConversationID: p.conv.ID, Content: "still there?"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, msg)
	assert.False(t, armed.Load(), "the deletion ran inside the send")

	var orphans int64
	require.NoError(t, env.db.Model(&models.Message{}).Where("conversation_id = ?", p.conv.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)
	assert.Empty(t, env.pub.events(events.NewMessage))
	assert.Empty(t, env.pub.events(events.MessageNotification))
}

func TestReactionLosesRaceWithMessageDeletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := matchedPair(t, env)
	msg, err := env.messages.Send(ctx, p.bob.ID, SendInput{ConversationID: p.conv.ID, Content: "hi"})
	require.NoError(t, err)

	armed := onceBefore(t, env.db, "query", "messages", func(tx *gorm.DB) {
		require.NoError(t, deleteConversationTree(tx, p.conv.ID))
	})
	armed.Store(true)

	_, err = env.reactions.Toggle(ctx, p.alice.ID, msg.ID, "🔥")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	var reactions int64
	require.NoError(t, env.db.Model(&models.MessageReaction{}).Count(&reactions).Error)
	assert.Zero(t, reactions)
	assert.Empty(t, env.pub.events(events.MessageReaction))
}

func TestUnmatchRemovesReactionsOfDeletedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := matchedPair(t, env)
	msg, err := env.messages.Send(ctx, p.bob.ID, SendInput{ConversationID: p.conv.ID, Content: "hi"})
	require.NoError(t, err)
	_, err = env.reactions.Toggle(ctx, p.alice.ID, msg.ID, "😍")
	require.NoError(t, err)

	other := uuid.New()
	require.NoError(t, env.db.Create(&models.MessageReaction{MessageID: other, UserID: p.alice.ID, Emoji: "👍"}).Error)

	require.NoError(t, env.matches.Unmatch(ctx, p.alice.ID, p.bob.ID))

	var remaining []models.MessageReaction
	require.NoError(t, env.db.Find(&remaining).Error)
	require.Len(t, remaining, 1, "only reactions of the conversation's messages are removed")
	assert.Equal(t, other, remaining[0].MessageID)
}

func TestSendReleasesTimelineLockBeforeNotifying(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := matchedPair(t, env)

	var lockFree atomic.Bool
	env.pub.onViewing = func(conversationID uuid.UUID) {
		m := env.messages.locks.stripe(conversationID)
		if m.TryLock() {
			lockFree.Store(true)
			m.Unlock()
		}
	}

	_, err := env.messages.Send(ctx, p.bob.ID, SendInput{ConversationID: p.conv.ID, Content: "hi"})
	require.NoError(t, err)
	assert.True(t, lockFree.Load(), "recipient lookups run without the conversation's stripe held")
	require.Len(t, env.pub.events(events.NewMessage), 1)
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/models"
	"gorm.io/gorm"
)

const (
	MaxMessageLength = 4000
	previewLength    = 80

	defaultMessagePage = 50
	maxMessagePage     = 200
)

type SendInput struct {
	ConversationID uuid.UUID
	Content        string
	ContentType    models.ContentType
	ReplyToID      *uuid.UUID
}

type ListOptions struct {
	Limit  int
	Before *time.Time
}

type MessageService struct {
	db          *gorm.DB
	publisher   Publisher
	push        PushNotifier
	eligibility *EligibilityChain
	pushTimeout time.Duration
	locks       timelineLocks
}

// NewMessageService wires the send pipeline. push may be nil when native push is not configured.
func NewMessageService(db *gorm.DB, publisher Publisher, push PushNotifier, eligibility *EligibilityChain, pushTimeout time.Duration) *MessageService {
	if pushTimeout <= 0 {
		pushTimeout = 10 * time.Second
	}
	return &MessageService{
		db:          db,
		publisher:   publisher,
		push:        push,
		eligibility: eligibility,
		pushTimeout: pushTimeout,
	}
}

// Authorize runs the membership and eligibility checks of Send without writing anything.
func (s *MessageService) Authorize(ctx context.Context, senderID, conversationID uuid.UUID) (*models.Conversation, *models.User, error) {
	conv, err := participantConversation(ctx, s.db, senderID, conversationID)
	if err != nil {
		return nil, nil, err
	}

	var sender models.User
	if err := s.db.WithContext(ctx).First(&sender, "id = ?", senderID).Error; err != nil {
		return nil, nil, lookupError(err, "user not found")
	}
	if err := s.eligibility.Check(ctx, &sender); err != nil {
		return nil, nil, err
	}
	return conv, &sender, nil
}

func (s *MessageService) Send(ctx context.Context, senderID uuid.UUID, in SendInput) (*models.Message, error) {
	conv, sender, err := s.Authorize(ctx, senderID, in.ConversationID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(in.Content)
	contentType := in.ContentType
	if contentType == "" {
		contentType = models.ContentText
	}
	if !contentType.Valid() {
		return nil, apperrors.Validation("contentType must be TEXT, IMAGE or VOICE")
	}
	if content == "" {
		return nil, apperrors.Validation("message content is required")
	}
	if contentType == models.ContentText && utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, apperrors.Validation("message is too long")
	}

	reply, err := s.resolveReply(ctx, conv.ID, in.ReplyToID)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    contentType,
	}
	if reply != nil {
		msg.ReplyToID = &reply.ID
	}

	unlock := s.locks.lock(conv.ID)
	msg.CreatedAt = time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Touching the conversation first takes its row lock, so a concurrent unmatch or delete
		// either waits for this insert or leaves nothing to update.
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Update("last_message_at", msg.CreatedAt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("conversation not found")
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		unlock()
		return nil, transactionError(err, "failed to save message")
	}

	msg.ReplyTo = reply
	msg.Reactions = []models.MessageReaction{}

	s.publisher.ToConversation(ctx, conv.ID, events.NewMessage, &msg, uuid.Nil)
	unlock()

	s.notifyRecipient(ctx, conv, sender, &msg)
	return &msg, nil
}

// resolveReply drops references to messages outside the conversation instead of failing the send.
func (s *MessageService) resolveReply(ctx context.Context, conversationID uuid.UUID, replyToID *uuid.UUID) (*models.Message, error) {
	if replyToID == nil {
		return nil, nil
	}
	var reply models.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", *replyToID, conversationID).
		First(&reply).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("failed to load reply target", err)
	}
	return &reply, nil
}

// notifyRecipient sends the toast and the push when the recipient is not looking at the conversation.
func (s *MessageService) notifyRecipient(ctx context.Context, conv *models.Conversation, sender *models.User, msg *models.Message) {
	recipientID := conv.Other(sender.ID)
	if s.publisher.IsViewing(ctx, conv.ID, recipientID) {
		return
	}

	var recipient models.User
	if err := s.db.WithContext(ctx).First(&recipient, "id = ?", recipientID).Error; err != nil {
		logger.Log.Warnw("message recipient could not be loaded", "conversation_id", conv.ID, "err", err)
		return
	}
	if recipient.PushDisabled {
		return
	}

	preview := Preview(msg.ContentType, msg.Content)
	s.publisher.ToUser(ctx, recipientID, events.MessageNotification, events.MessageNotificationPayload{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName,
		SenderPhotoURL: sender.PhotoURL,
		Preview:        preview,
		ContentType:    string(msg.ContentType),
		CreatedAt:      msg.CreatedAt,
	})

	if s.push == nil {
		return
	}
	convID := conv.ID
	payload := events.PushPayload{
		Title:          sender.DisplayName,
		Body:           preview,
		ConversationID: &convID,
		URL:            "/messages/" + convID.String(),
	}
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()
		s.push.Notify(pushCtx, recipientID, payload)
	}()
}

// Preview renders the one-line text used by toasts and push notifications.
func Preview(contentType models.ContentType, content string) string {
	switch contentType {
	case models.ContentImage:
		return "📷 Photo"
	case models.ContentVoice:
		return "🎤 Voice message"
	}
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}

// MarkRead marks every message addressed to the user as read. The reader's counterpart only
// hears about it when something actually changed.
func (s *MessageService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) (int64, error) {
	conv, err := participantConversation(ctx, s.db, userID, conversationID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conv.ID, userID).
		Update("read_at", now)
	if res.Error != nil {
		return 0, dbError("failed to mark messages read", res.Error)
	}
	if res.RowsAffected > 0 {
		s.publisher.ToConversation(ctx, conv.ID, events.MessagesRead, events.MessagesReadPayload{
			ConversationID: conv.ID,
			ReaderID:       userID,
			ReadAt:         now,
			Count:          res.RowsAffected,
		}, userID)
	}
	return res.RowsAffected, nil
}

// List returns one page of history in ascending order. Before pages backwards from a timestamp.
func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID, opts ListOptions) ([]models.Message, error) {
	conv, err := participantConversation(ctx, s.db, userID, conversationID)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}

	q := s.db.WithContext(ctx).
		Preload("Reactions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("ReplyTo").
		Where("conversation_id = ?", conv.ID)
	if opts.Before != nil {
		q = q.Where("created_at < ?", opts.Before.UTC())
	}

	var page []models.Message
	if err := q.Order("created_at DESC").Limit(limit).Find(&page).Error; err != nil {
		return nil, dbError("failed to load messages", err)
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	for i := range page {
		if page[i].Reactions == nil {
			page[i].Reactions = []models.MessageReaction{}
		}
	}
	return page, nil
}

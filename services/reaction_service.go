package services

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxEmojiLength = 16

type ReactionGroup struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"userIds"`
}

type ReactionUpdate struct {
	MessageID      uuid.UUID                `json:"messageId"`
	ConversationID uuid.UUID                `json:"conversationId"`
	UserID         uuid.UUID                `json:"userId"`
	Emoji          string                   `json:"emoji"`
	Added          bool                     `json:"added"`
	Reactions      []models.MessageReaction `json:"reactions"`
	Groups         []ReactionGroup          `json:"groups"`
}

type ReactionService struct {
	db        *gorm.DB
	publisher Publisher
}

func NewReactionService(db *gorm.DB, publisher Publisher) *ReactionService {
	return &ReactionService{db: db, publisher: publisher}
}

// Toggle adds the reaction when the user has not placed it yet and removes it otherwise.
func (s *ReactionService) Toggle(ctx context.Context, userID, messageID uuid.UUID, emoji string) (*ReactionUpdate, error) {
	emoji = strings.TrimSpace(emoji)
	if n := utf8.RuneCountInString(emoji); n == 0 || n > maxEmojiLength {
		return nil, apperrors.Validation("emoji must be between 1 and 16 characters")
	}

	var (
		msg       models.Message
		added     bool
		reactions []models.MessageReaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The share lock holds off a concurrent delete of the message until this toggle commits.
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
			First(&msg, "id = ?", messageID).Error
		if err != nil {
			return lookupError(err, "message not found")
		}
		if _, err := participantConversation(ctx, tx, userID, msg.ConversationID); err != nil {
			return apperrors.NotFound("message not found")
		}

		res := tx.Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
			Delete(&models.MessageReaction{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			reaction := models.MessageReaction{MessageID: messageID, UserID: userID, Emoji: emoji}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reaction).Error; err != nil {
				return err
			}
			added = true
		}
		return tx.Where("message_id = ?", messageID).Order("created_at ASC").Find(&reactions).Error
	})
	if err != nil {
		return nil, transactionError(err, "failed to toggle reaction")
	}

	update := &ReactionUpdate{
		MessageID:      messageID,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Emoji:          emoji,
		Added:          added,
		Reactions:      reactions,
		Groups:         GroupReactions(reactions),
	}
	s.publisher.ToConversation(ctx, msg.ConversationID, events.MessageReaction, update, uuid.Nil)
	return update, nil
}

// GroupReactions folds reactions by emoji, most used first, ties broken by first appearance.
func GroupReactions(reactions []models.MessageReaction) []ReactionGroup {
	groups := []ReactionGroup{}
	index := map[string]int{}
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji, UserIDs: []uuid.UUID{}})
		}
		groups[i].Count++
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Count > groups[b].Count })
	return groups
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationSummary struct {
	ID            uuid.UUID            `json:"id"`
	OtherUser     models.PublicProfile `json:"otherUser"`
	LastMessage   *models.Message      `json:"lastMessage"`
	UnreadCount   int64                `json:"unreadCount"`
	LastMessageAt time.Time            `json:"lastMessageAt"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type ConversationService struct {
	db        *gorm.DB
	publisher Publisher
	matches   *MatchService
}

func NewConversationService(db *gorm.DB, publisher Publisher, matches *MatchService) *ConversationService {
	return &ConversationService{db: db, publisher: publisher, matches: matches}
}

// StartOrGet returns the pair's conversation, creating it when missing. A concurrent creator
// wins the unique index; the loser re-reads the winner's row instead of failing.
func (s *ConversationService) StartOrGet(ctx context.Context, userID, otherUserID uuid.UUID) (*models.Conversation, bool, error) {
	if userID == otherUserID {
		return nil, false, apperrors.Validation("you cannot start a conversation with yourself")
	}

	matched, err := s.matches.IsMatched(ctx, userID, otherUserID)
	if err != nil {
		return nil, false, err
	}
	if !matched {
		return nil, false, apperrors.Forbidden("you can only message your matches")
	}

	lo, hi := utils.CanonicalPair(userID, otherUserID)
	existing, err := s.findByPair(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := models.Conversation{User1ID: lo, User2ID: hi, LastMessageAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
		DoNothing: true,
	}).Create(&conv)
	if res.Error != nil {
		return nil, false, dbError("failed to create conversation", res.Error)
	}
	if res.RowsAffected > 0 {
		return &conv, true, nil
	}

	winner, err := s.findByPair(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		return nil, false, apperrors.Internal("conversation vanished after conflict", nil)
	}
	return winner, false, nil
}

func (s *ConversationService) findByPair(ctx context.Context, lo, hi uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("user1_id = ? AND user2_id = ?", lo, hi).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("failed to load conversation", err)
	}
	return &conv, nil
}

// Get returns the conversation only to its participants. Everyone else gets NotFound.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	return participantConversation(ctx, s.db, userID, conversationID)
}

func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	db := s.db.WithContext(ctx)

	var convs []models.Conversation
	err := db.Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, dbError("failed to load conversations", err)
	}

	others := make([]uuid.UUID, len(convs))
	for i := range convs {
		others[i] = convs[i].Other(userID)
	}
	profiles, err := loadProfiles(ctx, s.db, s.publisher, others)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for i, conv := range convs {
		profile, ok := profiles[others[i]]
		if !ok {
			profile = models.PublicProfile{ID: others[i]}
		}

		var last []models.Message
		err := db.Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return nil, dbError("failed to load last message", err)
		}

		var unread int64
		err = db.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conv.ID, userID).
			Count(&unread).Error
		if err != nil {
			return nil, dbError("failed to count unread messages", err)
		}

		summary := ConversationSummary{
			ID:            conv.ID,
			OtherUser:     profile,
			UnreadCount:   unread,
			LastMessageAt: conv.LastMessageAt,
			CreatedAt:     conv.CreatedAt,
		}
		if len(last) > 0 {
			summary.LastMessage = &last[0]
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Delete removes the conversation and its history. The match is untouched.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := participantConversation(ctx, s.db, userID, conversationID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteConversationTree(tx, conv.ID)
	})
	return transactionError(err, "failed to delete conversation")
}

func (s *ConversationService) UnreadTotal(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.user1_id = ? OR conversations.user2_id = ?) AND messages.sender_id <> ? AND messages.read_at IS NULL",
			userID, userID, userID).
		Count(&count).Error
	if err != nil {
		return 0, dbError("failed to count unread messages", err)
	}
	return count, nil
}

func participantConversation(ctx context.Context, db *gorm.DB, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, lookupError(err, "conversation not found")
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.NotFound("conversation not found")
	}
	return &conv, nil
}

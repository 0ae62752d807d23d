package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/events"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LikeResult struct {
	Matched bool          `json:"matched"`
	Match   *models.Match `json:"match,omitempty"`
	// Created is true only for the call whose insert produced the match row.
	Created bool `json:"-"`
}

type MatchView struct {
	ID        uuid.UUID            `json:"id"`
	User      models.PublicProfile `json:"user"`
	CreatedAt time.Time            `json:"createdAt"`
}

type MatchService struct {
	db            *gorm.DB
	publisher     Publisher
	notifications *NotificationService
}

func NewMatchService(db *gorm.DB, publisher Publisher, notifications *NotificationService) *MatchService {
	return &MatchService{db: db, publisher: publisher, notifications: notifications}
}

// RecordLike stores a directional like and turns a mutual like into a match. Match creation is
// an insert on the canonical pair that ignores conflicts, so two users liking each other at the
// same moment still leave exactly one row and only one caller announces it.
func (s *MatchService) RecordLike(ctx context.Context, likerID, likedID uuid.UUID) (*LikeResult, error) {
	if likerID == likedID {
		return nil, apperrors.Validation("you cannot like yourself")
	}
	db := s.db.WithContext(ctx)

	var liked models.User
	if err := db.First(&liked, "id = ?", likedID).Error; err != nil {
		return nil, lookupError(err, "user not found")
	}

	blocked, err := s.isBlocked(ctx, likerID, likedID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, apperrors.Forbidden("you cannot interact with this user")
	}

	like := models.Like{LikerID: likerID, LikedID: likedID}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
	if res.Error != nil {
		return nil, dbError("failed to save like", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Conflict("already liked")
	}

	var reverse int64
	err = db.Model(&models.Like{}).
		Where("liker_id = ? AND liked_id = ?", likedID, likerID).
		Count(&reverse).Error
	if err != nil {
		return nil, dbError("failed to check likes", err)
	}
	if reverse == 0 {
		return &LikeResult{Matched: false}, nil
	}

	match, created, err := s.createMatch(ctx, likerID, likedID)
	if err != nil {
		return nil, err
	}
	if created {
		s.announceMatch(ctx, match, likerID, likedID)
	}
	return &LikeResult{Matched: true, Match: match, Created: created}, nil
}

func (s *MatchService) createMatch(ctx context.Context, a, b uuid.UUID) (*models.Match, bool, error) {
	db := s.db.WithContext(ctx)
	lo, hi := utils.CanonicalPair(a, b)

	candidate := models.Match{User1ID: lo, User2ID: hi}
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return nil, false, dbError("failed to save match", res.Error)
	}

	var match models.Match
	if err := db.Where("user1_id = ? AND user2_id = ?", lo, hi).First(&match).Error; err != nil {
		return nil, false, dbError("failed to load match", err)
	}
	return &match, res.RowsAffected > 0, nil
}

// announceMatch tells the liked user about the match. Failures are logged only.
func (s *MatchService) announceMatch(ctx context.Context, match *models.Match, likerID, likedID uuid.UUID) {
	var liker models.User
	if err := s.db.WithContext(ctx).First(&liker, "id = ?", likerID).Error; err != nil {
		logger.Log.Warnw("match created but liker could not be loaded", "match_id", match.ID, "err", err)
		return
	}

	public := liker.Public()
	public.IsOnline = s.publisher.IsOnline(ctx, likerID)
	s.publisher.ToUser(ctx, likedID, events.MatchNotification, events.MatchNotificationPayload{
		MatchID:   match.ID,
		User:      public,
		CreatedAt: match.CreatedAt,
	})

	_, err := s.notifications.Create(ctx, likedID, NotificationInput{
		Type:  models.NotificationMatch,
		Title: "It's a match!",
		Body:  fmt.Sprintf("You and %s liked each other", liker.DisplayName),
		Data:  map[string]any{"matchId": match.ID, "userId": likerID},
	})
	if err != nil {
		logger.Log.Warnw("failed to record match notification", "match_id", match.ID, "err", err)
	}
	logger.Log.Infow("💘 Match created", "match_id", match.ID, "liker_id", likerID, "liked_id", likedID)
}

// Unlike removes a directional like. Matched pairs have to unmatch instead.
func (s *MatchService) Unlike(ctx context.Context, likerID, likedID uuid.UUID) error {
	matched, err := s.IsMatched(ctx, likerID, likedID)
	if err != nil {
		return err
	}
	if matched {
		return apperrors.Conflict("you are matched with this user, unmatch instead")
	}

	res := s.db.WithContext(ctx).
		Where("liker_id = ? AND liked_id = ?", likerID, likedID).
		Delete(&models.Like{})
	if res.Error != nil {
		return dbError("failed to delete like", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("like not found")
	}
	return nil
}

// Unmatch removes the match, both likes and the pair's conversation in one transaction.
func (s *MatchService) Unmatch(ctx context.Context, userID, otherUserID uuid.UUID) error {
	lo, hi := utils.CanonicalPair(userID, otherUserID)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user1_id = ? AND user2_id = ?", lo, hi).Delete(&models.Match{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("match not found")
		}
		return dissolvePair(tx, userID, otherUserID)
	})
	return transactionError(err, "failed to unmatch")
}

func (s *MatchService) IsMatched(ctx context.Context, a, b uuid.UUID) (bool, error) {
	lo, hi := utils.CanonicalPair(a, b)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("user1_id = ? AND user2_id = ?", lo, hi).
		Count(&count).Error
	if err != nil {
		return false, dbError("failed to check match", err)
	}
	return count > 0, nil
}

func (s *MatchService) ListMatches(ctx context.Context, userID uuid.UUID) ([]MatchView, error) {
	var matches []models.Match
	err := s.db.WithContext(ctx).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&matches).Error
	if err != nil {
		return nil, dbError("failed to load matches", err)
	}

	ids := make([]uuid.UUID, len(matches))
	for i := range matches {
		ids[i] = matches[i].Other(userID)
	}
	profiles, err := loadProfiles(ctx, s.db, s.publisher, ids)
	if err != nil {
		return nil, err
	}

	views := make([]MatchView, 0, len(matches))
	for i, m := range matches {
		profile, ok := profiles[ids[i]]
		if !ok {
			continue
		}
		views = append(views, MatchView{ID: m.ID, User: profile, CreatedAt: m.CreatedAt})
	}
	return views, nil
}

// Block is idempotent. Any relationship between the pair is dissolved with it.
func (s *MatchService) Block(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	if blockerID == blockedID {
		return apperrors.Validation("you cannot block yourself")
	}
	var blocked models.User
	if err := s.db.WithContext(ctx).First(&blocked, "id = ?", blockedID).Error; err != nil {
		return lookupError(err, "user not found")
	}

	lo, hi := utils.CanonicalPair(blockerID, blockedID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		block := models.Block{BlockerID: blockerID, BlockedID: blockedID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&block).Error; err != nil {
			return err
		}
		if err := tx.Where("user1_id = ? AND user2_id = ?", lo, hi).Delete(&models.Match{}).Error; err != nil {
			return err
		}
		return dissolvePair(tx, blockerID, blockedID)
	})
	return transactionError(err, "failed to block user")
}

func (s *MatchService) Unblock(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	if res.Error != nil {
		return dbError("failed to unblock user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("block not found")
	}
	return nil
}

func (s *MatchService) isBlocked(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, dbError("failed to check blocks", err)
	}
	return count > 0, nil
}

// dissolvePair deletes both likes and the conversation tree of a pair. Callers own the transaction.
func dissolvePair(tx *gorm.DB, a, b uuid.UUID) error {
	err := tx.Where("(liker_id = ? AND liked_id = ?) OR (liker_id = ? AND liked_id = ?)", a, b, b, a).
		Delete(&models.Like{}).Error
	if err != nil {
		return err
	}

	lo, hi := utils.CanonicalPair(a, b)
	var conv models.Conversation
	err = tx.Where("user1_id = ? AND user2_id = ?", lo, hi).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return deleteConversationTree(tx, conv.ID)
}

// deleteConversationTree removes the conversation row first. Senders update that row before
// inserting, so none can add a message once it is gone. Messages go before reactions for the same
// reason, since reactions lock their parent message.
func deleteConversationTree(tx *gorm.DB, conversationID uuid.UUID) error {
	if err := tx.Where("id = ?", conversationID).Delete(&models.Conversation{}).Error; err != nil {
		return err
	}

	var messageIDs []uuid.UUID
	if err := tx.Model(&models.Message{}).Where("conversation_id = ?", conversationID).Pluck("id", &messageIDs).Error; err != nil {
		return err
	}
	if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}
	return tx.Where("message_id IN ?", messageIDs).Delete(&models.MessageReaction{}).Error
}

// transactionError passes application errors through and wraps everything else.
func transactionError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return dbError(msg, err)
}

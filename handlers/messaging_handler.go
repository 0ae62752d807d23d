package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/logger"
	"github.com/motionapp/motion-server/middleware"
	"github.com/motionapp/motion-server/models"
	"github.com/motionapp/motion-server/services"
)

const maxVoiceNoteBytes = 10 << 20

type SendMessageRequest struct {
	Content     string     `json:"content" validate:"required"`
	ContentType string     `json:"contentType" validate:"omitempty,oneof=TEXT IMAGE VOICE"`
	ReplyToID   *uuid.UUID `json:"replyToId"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (h *Handlers) GetConversations(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	summaries, err := h.Conversations.List(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(summaries)
}

func (h *Handlers) GetUnreadCount(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	count, err := h.Conversations.UnreadTotal(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

// GetConversationMessages returns a page of history and marks the conversation read.
func (h *Handlers) GetConversationMessages(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	convID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	opts := services.ListOptions{Limit: c.QueryInt("limit", 0)}
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return apperrors.Validation("before must be an RFC 3339 timestamp")
		}
		opts.Before = &before
	}

	ctx := c.UserContext()
	messages, err := h.Messages.List(ctx, userID, convID, opts)
	if err != nil {
		return err
	}
	if _, err := h.Messages.MarkRead(ctx, userID, convID); err != nil {
		logger.Log.Warnw("failed to mark conversation read", "conversation_id", convID, "user_id", userID, "err", err)
	}
	return c.JSON(fiber.Map{"conversationId": convID, "messages": messages})
}

func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	convID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	msg, err := h.Messages.Send(c.UserContext(), userID, services.SendInput{
		ConversationID: convID,
		Content:        req.Content,
		ContentType:    models.ContentType(req.ContentType),
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handlers) MarkConversationRead(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	convID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	updated, err := h.Messages.MarkRead(c.UserContext(), userID, convID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// UploadVoiceNote checks the sender may post before spending an upload, then sends a VOICE message.
func (h *Handlers) UploadVoiceNote(c *fiber.Ctx) error {
	if h.Voice == nil {
		return apperrors.Unavailable("voice notes are not available")
	}
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	convID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if _, _, err := h.Messages.Authorize(ctx, userID, convID); err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.Validation("multipart field file is required")
	}
	if fh.Size > maxVoiceNoteBytes {
		return apperrors.Validation("voice note is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return apperrors.Validation("cannot read uploaded file")
	}
	defer f.Close()

	url, err := h.Voice.Upload(ctx, f, fh.Filename)
	if err != nil {
		logger.Log.Errorw("voice note upload failed", "conversation_id", convID, "user_id", userID, "err", err)
		return apperrors.Unavailable("voice note upload failed")
	}

	msg, err := h.Messages.Send(ctx, userID, services.SendInput{
		ConversationID: convID,
		Content:        url,
		ContentType:    models.ContentVoice,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handlers) GetPhotoUploadSignature(c *fiber.Ctx) error {
	if h.Photos == nil {
		return apperrors.Unavailable("photo uploads are not available")
	}
	sig, err := h.Photos.SignPhotoUpload()
	if err != nil {
		return apperrors.Internal("failed to sign upload", err)
	}
	return c.JSON(sig)
}

func (h *Handlers) DeleteConversation(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	convID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.Conversations.Delete(c.UserContext(), userID, convID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "conversation deleted"})
}

func (h *Handlers) StartConversation(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	otherID, err := uuidParam(c, "otherUserId")
	if err != nil {
		return err
	}
	conv, created, err := h.Conversations.StartOrGet(c.UserContext(), userID, otherID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(conv)
}

func (h *Handlers) ToggleReaction(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	messageID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req ReactionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	update, err := h.Reactions.Toggle(c.UserContext(), userID, messageID, req.Emoji)
	if err != nil {
		return err
	}
	return c.JSON(update)
}

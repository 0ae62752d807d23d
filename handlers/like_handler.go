package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/middleware"
)

func (h *Handlers) Like(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	likedID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	result, err := h.Matches.RecordLike(c.UserContext(), userID, likedID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *Handlers) Unlike(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	likedID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	if err := h.Matches.Unlike(c.UserContext(), userID, likedID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "like removed"})
}

func (h *Handlers) GetMatches(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	matches, err := h.Matches.ListMatches(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(matches)
}

func (h *Handlers) Unmatch(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	otherID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	if err := h.Matches.Unmatch(c.UserContext(), userID, otherID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "unmatched"})
}

func (h *Handlers) Block(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	blockedID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	if err := h.Matches.Block(c.UserContext(), userID, blockedID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "user blocked"})
}

func (h *Handlers) Unblock(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	blockedID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	if err := h.Matches.Unblock(c.UserContext(), userID, blockedID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "user unblocked"})
}

// GetUserProfile returns another member's public profile with live presence.
func (h *Handlers) GetUserProfile(c *fiber.Ctx) error {
	if _, err := middleware.UserID(c); err != nil {
		return err
	}
	id, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	profiles, err := h.Users.Profiles(c.UserContext(), []uuid.UUID{id})
	if err != nil {
		return err
	}
	profile, ok := profiles[id]
	if !ok {
		return apperrors.NotFound("user not found")
	}
	return c.JSON(profile)
}

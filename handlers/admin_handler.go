package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/logger"
)

type FreeMessagingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type MuteRequest struct {
	Muted *bool `json:"muted" validate:"required"`
}

func (h *Handlers) GetFreeMessaging(c *fiber.Ctx) error {
	enabled, err := h.Settings.FreeMessaging(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"enabled": enabled})
}

// SetFreeMessaging flips the global payment gate. Every instance reads the row per send.
func (h *Handlers) SetFreeMessaging(c *fiber.Ctx) error {
	var req FreeMessagingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Settings.SetFreeMessaging(c.UserContext(), *req.Enabled); err != nil {
		return err
	}
	logger.Log.Infow("free messaging updated", "enabled", *req.Enabled)
	return c.JSON(fiber.Map{"enabled": *req.Enabled})
}

func (h *Handlers) SetUserMuted(c *fiber.Ctx) error {
	userID, err := uuidParam(c, "userId")
	if err != nil {
		return err
	}
	var req MuteRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Users.SetMuted(c.UserContext(), userID, *req.Muted); err != nil {
		return err
	}
	logger.Log.Infow("user mute updated", "user_id", userID, "muted", *req.Muted)
	return c.JSON(fiber.Map{"userId": userID, "muted": *req.Muted})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/middleware"
	"github.com/motionapp/motion-server/notifications"
)

type PushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=1024"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required,max=255"`
		Auth   string `json:"auth" validate:"required,max=255"`
	} `json:"keys"`
}

type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (h *Handlers) GetNotifications(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	list, err := h.Notifications.List(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *Handlers) GetNotificationUnreadCount(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	count, err := h.Notifications.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

func (h *Handlers) MarkNotificationRead(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.Notifications.MarkRead(c.UserContext(), userID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "notification marked as read"})
}

func (h *Handlers) MarkAllNotificationsRead(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	updated, err := h.Notifications.MarkAllRead(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": updated})
}

func (h *Handlers) GetPushPublicKey(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"publicKey": h.Push.PublicKey(), "enabled": h.Push.Enabled()})
}

func (h *Handlers) SubscribePush(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req PushSubscriptionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sub, err := h.Push.Subscribe(c.UserContext(), userID, notifications.SubscribeInput{
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: truncate(c.Get(fiber.HeaderUserAgent), 255),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *Handlers) UnsubscribePush(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}
	var req PushUnsubscribeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.Push.Unsubscribe(c.UserContext(), userID, req.Endpoint); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "push subscription removed"})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}


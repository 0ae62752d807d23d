package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/handlers"
)

func NotificationRoutes(api fiber.Router, h *handlers.Handlers) {
	notifications := api.Group("/notifications")
	notifications.Get("", h.GetNotifications)
	notifications.Get("/unread-count", h.GetNotificationUnreadCount)
	notifications.Put("/read-all", h.MarkAllNotificationsRead)
	notifications.Put("/:id/read", h.MarkNotificationRead)

	push := api.Group("/push")
	push.Post("/subscribe", h.SubscribePush)
	push.Delete("/subscribe", h.UnsubscribePush)
}

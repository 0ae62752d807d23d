package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/handlers"
	"github.com/motionapp/motion-server/middleware"
)

func AdminRoutes(api fiber.Router, h *handlers.Handlers) {
	admin := api.Group("/admin", middleware.AdminRequired())

	admin.Get("/settings/free-messaging", h.GetFreeMessaging)
	admin.Put("/settings/free-messaging", h.SetFreeMessaging)
	admin.Put("/users/:userId/mute", h.SetUserMuted)
}

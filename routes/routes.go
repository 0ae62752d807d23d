package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/handlers"
	"github.com/motionapp/motion-server/middleware"
)

// Register mounts every route. Public routes are registered before the JWT group so its
// middleware never runs for them.
func Register(app *fiber.App, h *handlers.Handlers, socket fiber.Handler, secret string) {
	PublicRoutes(app, h, socket, secret)

	api := app.Group("/api/v1", middleware.Protected(secret))
	MessagingRoutes(api, h)
	LikeRoutes(api, h)
	NotificationRoutes(api, h)
	AdminRoutes(api, h)
}

func PublicRoutes(app *fiber.App, h *handlers.Handlers, socket fiber.Handler, secret string) {
	app.Get("/api/v1/push/public-key", h.GetPushPublicKey)
	// The socket handshake carries its token in a header or the query string.
	app.Get("/api/v1/ws", middleware.WebSocketAuth(secret), socket)
}

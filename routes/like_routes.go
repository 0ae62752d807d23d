package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/handlers"
)

func LikeRoutes(api fiber.Router, h *handlers.Handlers) {
	likes := api.Group("/likes")
	likes.Get("/matches", h.GetMatches)
	likes.Delete("/unmatch/:userId", h.Unmatch)
	likes.Post("/:userId", h.Like)
	likes.Delete("/:userId", h.Unlike)

	blocks := api.Group("/blocks")
	blocks.Post("/:userId", h.Block)
	blocks.Delete("/:userId", h.Unblock)

	api.Get("/users/:userId", h.GetUserProfile)
}

package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/motionapp/motion-server/handlers"
)

func MessagingRoutes(api fiber.Router, h *handlers.Handlers) {
	conversations := api.Group("/conversations")
	conversations.Get("", h.GetConversations)
	conversations.Get("/unread-count", h.GetUnreadCount)
	conversations.Get("/:id", h.GetConversationMessages)
	conversations.Post("/:id", h.SendMessage)
	conversations.Put("/:id/read", h.MarkConversationRead)
	conversations.Post("/:id/voice", h.UploadVoiceNote)
	conversations.Delete("/:id", h.DeleteConversation)

	api.Post("/start/:otherUserId", h.StartConversation)
	api.Post("/messages/:id/reactions", h.ToggleReaction)
	api.Get("/uploads/signature", h.GetPhotoUploadSignature)
}

package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/media"
	"github.com/motionapp/motion-server/notifications"
	"github.com/motionapp/motion-server/services"
)

var validate = validator.New()

// PhotoSigner issues direct-upload signatures for chat photos.
type PhotoSigner interface {
	SignPhotoUpload() (*media.UploadSignature, error)
}

var _ PhotoSigner = (*media.CloudinaryUploader)(nil)

type Handlers struct {
	Users         *services.UserService
	Settings      *services.SettingsService
	Matches       *services.MatchService
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Reactions     *services.ReactionService
	Notifications *services.NotificationService
	Push          *notifications.PushService
	// Voice and Photos are nil when media storage is not configured.
	Voice  media.Uploader
	Photos PhotoSigner
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.Validation("cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return apperrors.Validation(err.Error())
	}
	return nil
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid " + name)
	}
	return id, nil
}

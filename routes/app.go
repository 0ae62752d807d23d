package routes

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/motionapp/motion-server/apperrors"
	"github.com/motionapp/motion-server/logger"
)

type AppConfig struct {
	CORSOrigins string
	AccessLog   bool
}

func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Motion",
		CaseSensitive:         true,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		BodyLimit:             12 << 20,
		ErrorHandler:          ErrorHandler,
	})

	origins := cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			TimeFormat: "2006-01-02 15:04:05",
			TimeZone:   "UTC",
			Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

// ErrorHandler renders every failure as {"status","code","error","message"}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := apperrors.HTTPStatus(err)
	code := string(apperrors.CodeOf(err))
	message := apperrors.PublicMessage(err)

	var fe *fiber.Error
	var ae *apperrors.AppError
	if !errors.As(err, &ae) && errors.As(err, &fe) {
		status = fe.Code
		code = string(codeForStatus(fe.Code))
		message = fe.Message
	}

	if status >= fiber.StatusInternalServerError {
		logger.Log.Errorw("request failed", "path", c.Path(), "method", c.Method(), "status", status, "err", err)
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"code":    status,
		"error":   code,
		"message": message,
	})
}

func codeForStatus(status int) apperrors.Code {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity, fiber.StatusRequestEntityTooLarge:
		return apperrors.CodeValidation
	case fiber.StatusUnauthorized:
		return apperrors.CodeUnauthenticated
	case fiber.StatusPaymentRequired:
		return apperrors.CodePaymentRequired
	case fiber.StatusForbidden:
		return apperrors.CodeForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return apperrors.CodeNotFound
	case fiber.StatusConflict:
		return apperrors.CodeConflict
	case fiber.StatusServiceUnavailable:
		return apperrors.CodeUnavailable
	}
	if status >= fiber.StatusInternalServerError {
		return apperrors.CodeInternal
	}
	return apperrors.CodeValidation
}

// Package api is the HTTP surface: fiber app, middleware and handlers.
package api

import (
	"errors"
	"time"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type AppOptions struct {
	FrontendURL  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewApp builds the fiber app with error mapping, recovery, cors and request
// logging installed. Routes are added by Register.
func NewApp(opts AppOptions, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "libamarket",
		DisableStartupMessage: true,
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          ErrorHandler(log),
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	origins := opts.FrontendURL
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: origins != "*",
	}))
	app.Use(RequestLogger(log))
	return app
}

// ErrorHandler renders every handler error as {"success":false,"error":...}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"success": false, "error": fe.Message})
		}

		kind := apperr.KindOf(err)
		if kind == apperr.KindInternal {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return c.Status(apperr.HTTPStatus(kind)).JSON(fiber.Map{
			"success": false,
			"error":   apperr.PublicMessage(err),
		})
	}
}

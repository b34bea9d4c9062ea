package api

import (
	"github.com/fathima-sithara/libamarket/internal/metrics"
	"github.com/fathima-sithara/libamarket/internal/ws"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Routes struct {
	Auth     *AuthHandler
	Listings *ListingHandler
	Chat     *ChatHandler
	Hub      *ws.Hub
	Authn    Authenticator
	Tokens   TokenValidator
	// RateLimit guards /api when set.
	RateLimit fiber.Handler
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

func Register(app *fiber.App, r Routes) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", r.Metrics.Handler())

	protect := Protect(r.Authn)

	api := app.Group("/api")
	if r.RateLimit != nil {
		api.Use(r.RateLimit)
	}

	auth := api.Group("/auth")
	auth.Post("/register", r.Auth.Register)
	auth.Post("/login", r.Auth.Login)
	auth.Get("/verifyemail/:token", r.Auth.VerifyEmail)
	auth.Post("/forgotpassword", r.Auth.ForgotPassword)
	auth.Put("/resetpassword/:token", r.Auth.ResetPassword)
	auth.Get("/me", protect, r.Auth.Me)
	auth.Put("/updatedetails", protect, r.Auth.UpdateDetails)
	auth.Put("/updatepassword", protect, r.Auth.UpdatePassword)
	auth.Delete("/deleteaccount", protect, r.Auth.DeleteAccount)

	listings := api.Group("/listings")
	listings.Get("/", r.Listings.List)
	listings.Post("/", protect, r.Listings.Create)
	listings.Post("/images/upload-url", protect, r.Listings.UploadURL)
	listings.Get("/:id", r.Listings.Get)
	listings.Put("/:id", protect, r.Listings.Update)
	listings.Delete("/:id", protect, r.Listings.Delete)

	chat := api.Group("/chat", protect)
	chat.Post("/send/:receiverId", r.Chat.Send)
	chat.Get("/messages/:conversationId", r.Chat.Messages)
	chat.Get("/conversations", r.Chat.Conversations)
	chat.Get("/online", r.Chat.Online)

	app.Use("/ws", OptionalAuth(r.Tokens, r.Log), RequireUpgrade)
	app.Get("/ws", r.Hub.Handler())
}

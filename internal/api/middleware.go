package api

import (
	"context"
	"strings"
	"time"

	"github.com/fathima-sithara/libamarket/internal/apperr"
	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/fathima-sithara/libamarket/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const localUser = "user"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

type TokenValidator interface {
	Validate(token string) (string, error)
}

func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = apperr.HTTPStatus(apperr.KindOf(err))
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.OriginalURL()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

// Protect requires a bearer token for a user that still exists and stores
// the caller under ws.LocalUserID.
func Protect(authn Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return apperr.Unauthenticated("Not authorized to access this route (no token)")
		}
		u, err := authn.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}
		c.Locals(ws.LocalUserID, u.ID.Hex())
		c.Locals(localUser, u)
		return c.Next()
	}
}

// OptionalAuth resolves the websocket handshake identity. A missing or bad
// token leaves the request anonymous.
func OptionalAuth(tokens TokenValidator, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Next()
		}
		uid, err := tokens.Validate(token)
		if err != nil {
			log.Debug("ws handshake token rejected", zap.Error(err))
			return c.Next()
		}
		c.Locals(ws.LocalUserID, uid)
		return c.Next()
	}
}

func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func callerID(c *fiber.Ctx) string {
	uid, _ := c.Locals(ws.LocalUserID).(string)
	return uid
}

func caller(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals(localUser).(*domain.User)
	return u
}

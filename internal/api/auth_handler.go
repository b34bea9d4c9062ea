package api

import (
	"github.com/fathima-sithara/libamarket/internal/service"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	svc       *service.AuthService
	publicURL string
}

// NewAuthHandler builds mailed links from publicURL, or from the request
// host when it is empty.
func NewAuthHandler(svc *service.AuthService, publicURL string) *AuthHandler {
	return &AuthHandler{svc: svc, publicURL: publicURL}
}

func (h *AuthHandler) linkBase(c *fiber.Ctx) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	return c.BaseURL()
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=20"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updateDetailsRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=50"`
	Phone *string `json:"phone" validate:"omitempty,max=20"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func sessionResponse(c *fiber.Ctx, status int, s *service.Session) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "token": s.Token, "data": s.User})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Register(c.UserContext(), service.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		LinkBase: h.linkBase(c),
	})
	if err != nil {
		return err
	}
	if sess.VerificationSent {
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success": true,
			"message": "Registration successful! Please check your email to verify your account.",
		})
	}
	return sessionResponse(c, fiber.StatusCreated, sess)
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	sess, err := h.svc.VerifyEmail(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Email verified successfully!", "token": sess.Token, "data": sess.User})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.svc.ForgotPassword(c.UserContext(), req.Email, h.linkBase(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "If an account with that email exists, a password reset link has been sent.",
	})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.ResetPassword(c.UserContext(), c.Params("token"), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Password reset successful!", "token": sess.Token})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return sessionResponse(c, fiber.StatusOK, sess)
}

// Me answers from the user Protect already loaded.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	if u := caller(c); u != nil {
		return c.JSON(fiber.Map{"success": true, "data": u})
	}
	u, err := h.svc.Me(c.UserContext(), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": u})
}

func (h *AuthHandler) UpdateDetails(c *fiber.Ctx) error {
	var req updateDetailsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.UpdateDetails(c.UserContext(), callerID(c), req.Name, req.Phone)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": u})
}

func (h *AuthHandler) UpdatePassword(c *fiber.Ctx) error {
	var req updatePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, err := h.svc.UpdatePassword(c.UserContext(), callerID(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return sessionResponse(c, fiber.StatusOK, sess)
}

func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	if err := h.svc.DeleteAccount(c.UserContext(), callerID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Account deleted successfully", "data": fiber.Map{}})
}

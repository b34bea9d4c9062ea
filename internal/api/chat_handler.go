package api

import (
	"github.com/fathima-sithara/libamarket/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ChatHandler struct {
	svc *service.MessagingService
}

func NewChatHandler(svc *service.MessagingService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Send(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := h.svc.SendMessage(c.UserContext(), callerID(c), c.Params("receiverId"), req.Message)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": msg})
}

func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	msgs, err := h.svc.GetMessages(c.UserContext(), callerID(c), c.Params("conversationId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(msgs), "data": msgs})
}

func (h *ChatHandler) Conversations(c *fiber.Ctx) error {
	convs, err := h.svc.GetConversations(c.UserContext(), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(convs), "data": convs})
}

func (h *ChatHandler) Online(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "data": h.svc.OnlineUsers()})
}

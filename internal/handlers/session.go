package handlers

import (
	"betcore/internal/services/gateway"
	"betcore/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// SessionHandler exposes session token refresh to the game client.
type SessionHandler struct {
	gateway gateway.Service
}

func NewSessionHandler(gw gateway.Service) *SessionHandler {
	return &SessionHandler{gateway: gw}
}

type refreshRequest struct {
	SessionToken string `json:"session_token"`
}

func (h *SessionHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.SessionToken == "" {
		return response.BadRequest(c, "session_token is required")
	}

	fresh, err := h.gateway.RefreshSession(c.Context(), req.SessionToken)
	if err != nil {
		return response.Unauthorized(c, "invalid session token")
	}
	return response.Success(c, fiber.Map{"session_token": fresh})
}

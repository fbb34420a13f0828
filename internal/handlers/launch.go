package handlers

import (
	"errors"

	domerr "betcore/internal/errors"
	"betcore/internal/models"
	"betcore/internal/repositories"
	"betcore/internal/services/token"
	"betcore/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// LaunchHandler issues the single-use launch token a game client presents
// to the provider, which the provider then exchanges for a session via the
// authenticate callback.
type LaunchHandler struct {
	users  repositories.UserRepository
	tokens token.Service
}

func NewLaunchHandler(users repositories.UserRepository, tokens token.Service) *LaunchHandler {
	return &LaunchHandler{users: users, tokens: tokens}
}

type launchRequest struct {
	UserID uint `json:"user_id"`
}

func (h *LaunchHandler) Launch(c *fiber.Ctx) error {
	var req launchRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return response.BadRequest(c, "user_id is required")
	}

	user, err := h.users.GetByID(c.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return response.NotFound(c, "user not found")
		}
		return response.ServerError(c, "failed to load user")
	}
	if user.Status != models.UserStatusActive {
		return response.Error(c, fiber.StatusForbidden, domerr.ErrUserBlocked.Message)
	}

	tok, err := h.tokens.IssueLaunchToken(c.Context(), user.ID)
	if err != nil {
		return response.ServerError(c, "failed to issue launch token")
	}

	return response.Success(c, fiber.Map{
		"launch_token": tok,
		"user_id":      user.ID,
	})
}

package handlers

import (
	"crypto/subtle"
	"errors"

	"betcore/internal/config"
	"betcore/internal/models"
	"betcore/internal/repositories"
	"betcore/internal/utils"
	"betcore/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// OpsHandler serves the back-office API: operator login, transaction
// lookup and player block/unblock.
type OpsHandler struct {
	users  repositories.UserRepository
	ledger repositories.LedgerRepository
	cfg    config.OpsConfig
}

func NewOpsHandler(users repositories.UserRepository, ledger repositories.LedgerRepository, cfg config.OpsConfig) *OpsHandler {
	return &OpsHandler{users: users, ledger: ledger, cfg: cfg}
}

type opsLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *OpsHandler) Login(c *fiber.Ctx) error {
	var req opsLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if h.cfg.Password == "" {
		return response.ServerError(c, "ops API not configured")
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.Password)) == 1
	if !userOK || !passOK {
		return response.Unauthorized(c, "invalid credentials")
	}

	tok, err := utils.GenerateOperatorToken(req.Username, "operator", h.cfg.JWTSecret, h.cfg.TokenTTL)
	if err != nil {
		return response.ServerError(c, "failed to issue token")
	}
	return response.Success(c, fiber.Map{"token": tok})
}

func (h *OpsHandler) GetTransaction(c *fiber.Ctx) error {
	providerTxID := c.Params("providerTxId")
	if providerTxID == "" {
		return response.BadRequest(c, "providerTxId is required")
	}

	tx, err := h.ledger.FindByProviderTxID(c.Context(), providerTxID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return response.NotFound(c, "transaction not found")
		}
		return response.ServerError(c, "failed to load transaction")
	}

	return response.Success(c, fiber.Map{
		"provider_tx_id": tx.ProviderTxID,
		"operator_tx_id": tx.OperatorTxID,
		"user_id":        tx.UserID,
		"provider":       tx.Provider,
		"kind":           tx.Kind,
		"amount":         tx.Amount.StringFixed(2),
		"balance_before": tx.BalanceBefore.StringFixed(2),
		"balance_after":  tx.BalanceAfter.StringFixed(2),
		"status":         tx.Status,
		"related_tx_id":  tx.RelatedTxID,
		"created_at":     tx.CreatedAt,
		"updated_at":     tx.UpdatedAt,
	})
}

func (h *OpsHandler) BlockUser(c *fiber.Ctx) error {
	return h.setUserStatus(c, models.UserStatusBlocked)
}

func (h *OpsHandler) UnblockUser(c *fiber.Ctx) error {
	return h.setUserStatus(c, models.UserStatusActive)
}

func (h *OpsHandler) setUserStatus(c *fiber.Ctx, status string) error {
	userID, err := c.ParamsInt("userId")
	if err != nil || userID <= 0 {
		return response.BadRequest(c, "invalid user id")
	}

	if err := h.users.SetStatus(c.Context(), uint(userID), status); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return response.NotFound(c, "user not found")
		}
		return response.ServerError(c, "failed to update user status")
	}
	return response.Success(c, fiber.Map{"user_id": userID, "status": status})
}

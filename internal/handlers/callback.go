// Package handlers contains the fiber HTTP handlers: the provider callback
// endpoint and the operator-facing API.
package handlers

import (
	domerr "betcore/internal/errors"
	"betcore/internal/providers"
	"betcore/internal/services/gateway"
	"betcore/internal/services/signature"

	"github.com/gofiber/fiber/v2"
)

// CallbackHandler serves POST /callback/:provider/:action. Every business
// outcome, including failures, is returned as a well-formed 200 body so
// the provider's retry logic keeps working; only an unknown provider or
// action is a transport-level error.
type CallbackHandler struct {
	registry *providers.Registry
	gateway  gateway.Service
}

func NewCallbackHandler(registry *providers.Registry, gw gateway.Service) *CallbackHandler {
	return &CallbackHandler{registry: registry, gateway: gw}
}

func (h *CallbackHandler) Handle(c *fiber.Ctx) error {
	adapter, ok := h.registry.Get(c.Params("provider"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown provider"})
	}
	action := c.Params("action")
	body := c.Body()

	// Signature first. A forged callback is rejected before the body is
	// even parsed, so no ledger or balance state is touched or timed.
	supplied := c.Get(adapter.SignatureHeader())
	if !signature.Verify(adapter.Secret(), supplied, adapter.SignatureParts(c.Path(), body)...) {
		return c.JSON(adapter.RenderError(domerr.ErrInvalidSignature))
	}

	req, err := adapter.ParseRequest(action, body)
	if err != nil {
		return c.JSON(adapter.RenderError(err))
	}

	ctx := c.Context()
	switch action {
	case providers.ActionAuthenticate:
		res, err := h.gateway.Authenticate(ctx, req.Token)
		if err != nil {
			return c.JSON(adapter.RenderError(err))
		}
		return c.JSON(adapter.RenderAuth(res))

	case providers.ActionBalance:
		res, err := h.gateway.Balance(ctx, req.Token)
		if err != nil {
			return c.JSON(adapter.RenderError(err))
		}
		return c.JSON(adapter.RenderBalance(res))

	case providers.ActionDebit:
		res, err := h.gateway.Debit(ctx, req.Token, adapter.Code(), req.ProviderTxID, req.Amount)
		if err != nil {
			return c.JSON(adapter.RenderError(err))
		}
		return c.JSON(adapter.RenderTransaction(res))

	case providers.ActionCredit:
		res, err := h.gateway.Credit(ctx, req.Token, adapter.Code(), req.ProviderTxID, req.Amount, req.RelatedTxID)
		if err != nil {
			return c.JSON(adapter.RenderError(err))
		}
		return c.JSON(adapter.RenderTransaction(res))

	case providers.ActionRollback:
		res, err := h.gateway.Rollback(ctx, req.Token, adapter.Code(), req.ProviderTxID, req.RelatedTxID, req.Amount)
		if err != nil {
			return c.JSON(adapter.RenderError(err))
		}
		return c.JSON(adapter.RenderTransaction(res))

	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown action"})
	}
}

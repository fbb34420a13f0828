// Package classic implements the canonical JSON callback dialect spoken by
// most integrated providers: decimal string amounts in the wallet's own
// unit, signature over the request path plus body.
package classic

import (
	"encoding/json"
	"errors"
	"fmt"

	"betcore/internal/config"
	domerr "betcore/internal/errors"
	"betcore/internal/providers"
	"betcore/internal/services/gateway"

	"github.com/shopspring/decimal"
)

type Adapter struct {
	cfg config.ProviderConfig
}

func New(cfg config.ProviderConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Code() string   { return a.cfg.Code }
func (a *Adapter) Secret() string { return a.cfg.Secret }

func (a *Adapter) SignatureHeader() string { return "X-Signature" }

func (a *Adapter) SignatureParts(path string, body []byte) []string {
	return []string{path, string(body)}
}

type wireRequest struct {
	Token       string `json:"token"`
	TxID        string `json:"tx_id"`
	RelatedTxID string `json:"related_tx_id"`
	Amount      string `json:"amount"`
}

func (a *Adapter) ParseRequest(action string, body []byte) (*providers.Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body", domerr.ErrValidation)
	}
	req := &providers.Request{
		Token:        wire.Token,
		ProviderTxID: wire.TxID,
		RelatedTxID:  wire.RelatedTxID,
	}
	switch action {
	case providers.ActionDebit, providers.ActionCredit, providers.ActionRollback:
		amount, err := decimal.NewFromString(wire.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", domerr.ErrValidation, wire.Amount)
		}
		req.Amount = amount
	}
	return req, nil
}

func (a *Adapter) RenderAuth(res *gateway.AuthResult) interface{} {
	return map[string]interface{}{
		"status":        "ok",
		"user_id":       res.UserID,
		"nickname":      res.Nickname,
		"balance":       res.Balance.StringFixed(2),
		"currency":      res.Currency,
		"session_token": res.SessionToken,
	}
}

func (a *Adapter) RenderBalance(res *gateway.BalanceResult) interface{} {
	return map[string]interface{}{
		"status":   "ok",
		"user_id":  res.UserID,
		"balance":  res.Balance.StringFixed(2),
		"currency": res.Currency,
	}
}

func (a *Adapter) RenderTransaction(res *gateway.TxResult) interface{} {
	return map[string]interface{}{
		"status":         "ok",
		"balance":        res.Balance.StringFixed(2),
		"operator_tx_id": res.OperatorTxID,
	}
}

func (a *Adapter) RenderError(err error) interface{} {
	var already *gateway.AlreadyProcessedError
	if errors.As(err, &already) {
		return map[string]interface{}{
			"status":  "error",
			"code":    "ALREADY_PROCESSED",
			"balance": already.Balance.StringFixed(2),
		}
	}
	var de *domerr.DomainError
	if errors.As(err, &de) {
		return map[string]interface{}{
			"status":  "error",
			"code":    de.Code,
			"message": de.Message,
		}
	}
	return map[string]interface{}{
		"status":  "error",
		"code":    "TEMPORARY_ERROR",
		"message": "operation failed, retry later",
	}
}

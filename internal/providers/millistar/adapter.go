// Package millistar implements the dialect of providers whose wire amounts
// are integer milliunits (×1000 of the wallet unit). The conversion lives
// entirely here; the gateway only ever sees the canonical unit.
package millistar

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

// Wire status codes.
const (
	codeOK               = 0
	codeTokenNotFound    = 1
	codeUserBlocked      = 2
	codeInsufficient     = 3
	codeTxNotFound       = 4
	codeAlreadyProcessed = 5
	codeValidation       = 6
	codeTemporary        = 9
)

type Adapter struct {
	cfg   config.ProviderConfig
	scale decimal.Decimal
}

func New(cfg config.ProviderConfig) *Adapter {
	if cfg.UnitScale <= 0 {
		cfg.UnitScale = 1000
	}
	return &Adapter{cfg: cfg, scale: decimal.NewFromInt(cfg.UnitScale)}
}

func (a *Adapter) Code() string   { return a.cfg.Code }
func (a *Adapter) Secret() string { return a.cfg.Secret }

func (a *Adapter) SignatureHeader() string { return "X-Sign" }

// This provider signs the body alone.
func (a *Adapter) SignatureParts(_ string, body []byte) []string {
	return []string{string(body)}
}

type wireRequest struct {
	Session          string `json:"session"`
	TransactionID    string `json:"transaction_id"`
	RefTransactionID string `json:"ref_transaction_id"`
	Amount           *int64 `json:"amount"`
}

func (a *Adapter) ParseRequest(action string, body []byte) (*providers.Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON body", domerr.ErrValidation)
	}
	req := &providers.Request{
		Token:        wire.Session,
		ProviderTxID: wire.TransactionID,
		RelatedTxID:  wire.RefTransactionID,
	}
	switch action {
	case providers.ActionDebit, providers.ActionCredit, providers.ActionRollback:
		if wire.Amount == nil {
			return nil, fmt.Errorf("%w: amount required", domerr.ErrValidation)
		}
		req.Amount = a.toCanonical(*wire.Amount)
	}
	return req, nil
}

// toCanonical converts wire milliunits into the wallet unit.
func (a *Adapter) toCanonical(wire int64) decimal.Decimal {
	return decimal.NewFromInt(wire).Div(a.scale)
}

// toWire converts a wallet-unit amount into wire milliunits.
func (a *Adapter) toWire(amount decimal.Decimal) int64 {
	return amount.Mul(a.scale).IntPart()
}

func (a *Adapter) RenderAuth(res *gateway.AuthResult) interface{} {
	return map[string]interface{}{
		"code":     codeOK,
		"user_id":  res.UserID,
		"nickname": res.Nickname,
		"balance":  a.toWire(res.Balance),
		"currency": res.Currency,
		"session":  res.SessionToken,
	}
}

func (a *Adapter) RenderBalance(res *gateway.BalanceResult) interface{} {
	return map[string]interface{}{
		"code":    codeOK,
		"user_id": res.UserID,
		"balance": a.toWire(res.Balance),
	}
}

func (a *Adapter) RenderTransaction(res *gateway.TxResult) interface{} {
	return map[string]interface{}{
		"code":    codeOK,
		"balance": a.toWire(res.Balance),
	}
}

func (a *Adapter) RenderError(err error) interface{} {
	var already *gateway.AlreadyProcessedError
	if errors.As(err, &already) {
		return map[string]interface{}{
			"code":    codeAlreadyProcessed,
			"balance": a.toWire(already.Balance),
		}
	}
	var de *domerr.DomainError
	if errors.As(err, &de) {
		return map[string]interface{}{
			"code":    wireCode(de),
			"message": de.Message,
		}
	}
	return map[string]interface{}{
		"code":    codeTemporary,
		"message": "temporary failure",
	}
}

func wireCode(de *domerr.DomainError) int {
	switch de {
	case domerr.ErrTokenNotFound:
		return codeTokenNotFound
	case domerr.ErrUserBlocked:
		return codeUserBlocked
	case domerr.ErrInsufficientFunds:
		return codeInsufficient
	case domerr.ErrTransactionNotFound:
		return codeTxNotFound
	case domerr.ErrAlreadyProcessed:
		return codeAlreadyProcessed
	case domerr.ErrValidation, domerr.ErrInvalidAmount:
		return codeValidation
	default:
		return codeTemporary
	}
}

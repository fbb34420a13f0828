// Package providers holds the adapter layer between provider wire dialects
// and the canonical wallet gateway operations. Adapters own field-name
// translation, response envelopes and money-unit conversion; they never
// touch the ledger or balances themselves.
package providers

import (
	"betcore/internal/services/gateway"

	"github.com/shopspring/decimal"
)

// Canonical callback actions.
const (
	ActionAuthenticate = "authenticate"
	ActionBalance      = "balance"
	ActionDebit        = "debit"
	ActionCredit       = "credit"
	ActionRollback     = "rollback"
)

// Request is a provider callback translated into canonical fields. Amounts
// are already converted into the wallet's unit.
type Request struct {
	Token        string
	ProviderTxID string
	RelatedTxID  string
	Amount       decimal.Decimal
}

// Adapter translates one provider's dialect to and from the canonical
// operations. Each adapter is constructed with its own injected
// ProviderConfig; there is no shared mutable provider state.
type Adapter interface {
	Code() string
	Secret() string
	// SignatureHeader names the request header carrying the HMAC.
	SignatureHeader() string
	// SignatureParts assembles the message this provider signs.
	SignatureParts(path string, body []byte) []string
	ParseRequest(action string, body []byte) (*Request, error)
	RenderAuth(res *gateway.AuthResult) interface{}
	RenderBalance(res *gateway.BalanceResult) interface{}
	RenderTransaction(res *gateway.TxResult) interface{}
	RenderError(err error) interface{}
}

// Registry resolves adapters by provider code.
type Registry struct {
	byCode map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{byCode: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.byCode[a.Code()] = a
	}
	return r
}

func (r *Registry) Get(code string) (Adapter, bool) {
	a, ok := r.byCode[code]
	return a, ok
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.byCode))
	for c := range r.byCode {
		codes = append(codes, c)
	}
	return codes
}

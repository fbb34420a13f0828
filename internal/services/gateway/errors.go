package gateway

import (
	"fmt"

	domerr "betcore/internal/errors"

	"github.com/shopspring/decimal"
)

// AlreadyProcessedError reports that the referenced transaction was handled
// before. It carries the wallet balance so adapters can render the
// provider's ALREADY_PROCESSED envelope, which includes the balance.
type AlreadyProcessedError struct {
	Balance decimal.Decimal
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("ALREADY_PROCESSED: balance %s", e.Balance.StringFixed(2))
}

// Is lets errors.Is match the canonical sentinel.
func (e *AlreadyProcessedError) Is(target error) bool {
	return target == domerr.ErrAlreadyProcessed
}

package repositories

import (
	"context"

	"betcore/internal/models"

	"github.com/shopspring/decimal"
)

// WalletRepository is the authoritative balance store. ApplyDelta is the
// only mutation path for balances.
type WalletRepository interface {
	Create(ctx context.Context, wallet *models.Wallet) error
	GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error)
	// ApplyDelta adds delta to the user's balance in one conditional
	// statement and returns the resulting balance. The update applies only
	// when balance + delta >= minResulting; a zero-row result is the sole
	// signal of insufficient funds.
	ApplyDelta(ctx context.Context, userID uint, delta, minResulting decimal.Decimal) (decimal.Decimal, error)
}

package repositories

import (
	"context"
	"errors"
	"fmt"

	"betcore/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// ApplyDelta is the single-statement conditional update that carries the
// whole concurrency model: the row-level lock taken by UPDATE serializes
// concurrent mutations of one wallet, and the WHERE clause makes an
// overdraw impossible regardless of interleaving.
func (r *walletRepository) ApplyDelta(ctx context.Context, userID uint, delta, minResulting decimal.Decimal) (decimal.Decimal, error) {
	var row struct {
		Balance decimal.Decimal
	}
	result := r.db.WithContext(ctx).Raw(`
		UPDATE wallets
		SET balance = balance + ?, updated_at = now()
		WHERE user_id = ? AND balance + ? >= ?
		RETURNING balance`,
		delta, userID, delta, minResulting,
	).Scan(&row)
	if result.Error != nil {
		return decimal.Zero, fmt.Errorf("failed to apply balance delta: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Zero rows means the condition failed or the wallet is missing;
		// the follow-up read is for error mapping only, never to compute
		// a balance to write back.
		if _, err := r.GetByUserID(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	return row.Balance, nil
}

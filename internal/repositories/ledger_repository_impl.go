package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betcore/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) BeginIfAbsent(ctx context.Context, tx *models.Transaction) (bool, *models.Transaction, error) {
	tx.Status = models.TxStatusPending
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Create(tx).Error
	})
	if err == nil {
		return true, nil, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		existing, ferr := r.FindByProviderTxID(ctx, tx.ProviderTxID)
		if ferr != nil {
			return false, nil, fmt.Errorf("failed to load duplicate transaction: %w", ferr)
		}
		return false, existing, nil
	}
	return false, nil, fmt.Errorf("failed to insert transaction: %w", err)
}

func (r *ledgerRepository) Finalize(ctx context.Context, providerTxID, status string, balanceBefore, balanceAfter decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("provider_tx_id = ? AND status = ?", providerTxID, models.TxStatusPending).
		Updates(map[string]interface{}{
			"status":         status,
			"balance_before": balanceBefore,
			"balance_after":  balanceAfter,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finalize transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *ledgerRepository) MarkRolledBack(ctx context.Context, relatedTxID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("provider_tx_id = ? AND status = ?", relatedTxID, models.TxStatusCompleted).
		Updates(map[string]interface{}{
			"status":     models.TxStatusRolledBack,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark transaction rolled back: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ledgerRepository) FindByProviderTxID(ctx context.Context, providerTxID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := withRetry(func() error {
		return r.db.WithContext(ctx).Where("provider_tx_id = ?", providerTxID).First(&tx).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) FindByRelatedTxID(ctx context.Context, relatedTxID, kind, status string) (*models.Transaction, error) {
	var tx models.Transaction
	err := withRetry(func() error {
		return r.db.WithContext(ctx).
			Where("related_tx_id = ? AND kind = ? AND status = ?", relatedTxID, kind, status).
			First(&tx).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find related transaction: %w", err)
	}
	return &tx, nil
}

func (r *ledgerRepository) FailStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("status = ? AND created_at < ?", models.TxStatusPending, olderThan).
		Updates(map[string]interface{}{
			"status":     models.TxStatusFailed,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep pending transactions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

package repositories

import (
	"context"
	"time"

	"betcore/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerRepository is the append-mostly transaction log. Its unique
// constraint on provider_tx_id is the idempotency boundary for the whole
// gateway.
type LedgerRepository interface {
	// BeginIfAbsent inserts a pending row for tx and reports isNew=true.
	// When a row with the same ProviderTxID already exists it is returned
	// unmodified with isNew=false so the caller can replay its outcome.
	// The check and the insert are one statement; there is no window for
	// two concurrent deliveries of the same id to both observe "absent".
	BeginIfAbsent(ctx context.Context, tx *models.Transaction) (isNew bool, existing *models.Transaction, err error)
	// Finalize transitions a pending row to completed or failed and records
	// the balances actually applied.
	Finalize(ctx context.Context, providerTxID, status string, balanceBefore, balanceAfter decimal.Decimal) error
	// MarkRolledBack flips the referenced transaction from completed to
	// rolled_back. It reports false when the row is missing, never
	// completed, or already rolled back; the check and the flip are one
	// atomic statement.
	MarkRolledBack(ctx context.Context, relatedTxID string) (bool, error)
	FindByProviderTxID(ctx context.Context, providerTxID string) (*models.Transaction, error)
	FindByRelatedTxID(ctx context.Context, relatedTxID, kind, status string) (*models.Transaction, error)
	// FailStalePending fails pending rows older than the cutoff so a later
	// duplicate delivery does not mistake a crashed attempt for an
	// in-flight one. Returns the number of rows swept.
	FailStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

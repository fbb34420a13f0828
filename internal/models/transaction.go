package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds
const (
	TxKindDebit    = "debit"
	TxKindCredit   = "credit"
	TxKindRollback = "rollback"
)

// Transaction statuses. pending -> completed | failed; completed -> rolled_back.
// failed and rolled_back are terminal.
const (
	TxStatusPending    = "pending"
	TxStatusCompleted  = "completed"
	TxStatusFailed     = "failed"
	TxStatusRolledBack = "rolled_back"
)

// Transaction is one ledger row. ProviderTxID carries the unique constraint
// that makes duplicate deliveries replay instead of re-execute.
type Transaction struct {
	ID            uint            `gorm:"primarykey"`
	ProviderTxID  string          `gorm:"size:128;uniqueIndex;not null"`
	OperatorTxID  string          `gorm:"size:64;not null"`
	UserID        uint            `gorm:"index;not null"`
	Provider      string          `gorm:"size:32;index"`
	Kind          string          `gorm:"size:16;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2)"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2)"`
	Status        string          `gorm:"size:16;not null;default:'pending'"`
	RelatedTxID   string          `gorm:"size:128;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the authoritative balance row for one user. The balance column
// is mutated only through the wallet repository's conditional update, never
// through read-modify-write from application code.
type Wallet struct {
	ID        uint            `gorm:"primarykey"`
	UserID    uint            `gorm:"uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	Currency  string          `gorm:"type:varchar(3);default:'USD'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

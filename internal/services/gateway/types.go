package gateway

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthResult is the outcome of a successful Authenticate.
type AuthResult struct {
	UserID       uint
	Nickname     string
	Balance      decimal.Decimal
	Currency     string
	SessionToken string
}

// BalanceResult is the outcome of a Balance query.
type BalanceResult struct {
	UserID   uint
	Balance  decimal.Decimal
	Currency string
}

// TxResult is the outcome of a Debit, Credit or Rollback. Replayed is true
// when the response was answered from an existing ledger row instead of a
// fresh execution.
type TxResult struct {
	Balance      decimal.Decimal
	OperatorTxID string
	Replayed     bool
}

// MetricsCollector receives operation outcomes. A no-op implementation is
// used when no collector is configured.
type MetricsCollector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordError(operation, errType string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordOperationDuration(string, time.Duration) {}
func (n *NoopMetricsCollector) RecordOperationResult(string, string)          {}
func (n *NoopMetricsCollector) RecordError(string, string)                    {}

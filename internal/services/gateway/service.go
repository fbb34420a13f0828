// Package gateway implements the canonical wallet operations every provider
// adapter maps onto: Authenticate, Debit, Credit and Rollback. Correctness
// does not rely on in-process locks; the ledger's unique constraint and the
// balance store's conditional update carry the concurrency model, so any
// number of gateway instances may run behind a load balancer.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"betcore/internal/config"
	domerr "betcore/internal/errors"
	"betcore/internal/models"
	"betcore/internal/repositories"
	"betcore/internal/services/token"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the wallet gateway consumed by the provider adapters.
type Service interface {
	Authenticate(ctx context.Context, launchToken string) (*AuthResult, error)
	Balance(ctx context.Context, sessionToken string) (*BalanceResult, error)
	Debit(ctx context.Context, sessionToken, provider, providerTxID string, amount decimal.Decimal) (*TxResult, error)
	Credit(ctx context.Context, sessionToken, provider, providerTxID string, amount decimal.Decimal, relatedDebitTxID string) (*TxResult, error)
	Rollback(ctx context.Context, sessionToken, provider, providerTxID, relatedTxID string, amount decimal.Decimal) (*TxResult, error)
	RefreshSession(ctx context.Context, sessionToken string) (string, error)
}

type service struct {
	users   repositories.UserRepository
	wallets repositories.WalletRepository
	ledger  repositories.LedgerRepository
	tokens  token.Service
	cfg     config.GatewayConfig
	metrics MetricsCollector
}

func NewService(
	users repositories.UserRepository,
	wallets repositories.WalletRepository,
	ledger repositories.LedgerRepository,
	tokens token.Service,
	cfg config.GatewayConfig,
	metrics MetricsCollector,
) Service {
	if users == nil || wallets == nil || ledger == nil || tokens == nil {
		panic("users, wallets, ledger and tokens are required")
	}
	if metrics == nil {
		metrics = &NoopMetricsCollector{}
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &service{
		users:   users,
		wallets: wallets,
		ledger:  ledger,
		tokens:  tokens,
		cfg:     cfg,
		metrics: metrics,
	}
}

func (s *service) Authenticate(ctx context.Context, launchToken string) (*AuthResult, error) {
	defer s.timeOp("authenticate", time.Now())

	// Consuming the launch token validates and invalidates it in one step.
	userID, err := s.tokens.ValidateAndConsume(ctx, launchToken, token.ClassLaunch)
	if err != nil {
		return nil, s.fail("authenticate", domerr.ErrTokenNotFound)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, s.fail("authenticate", domerr.ErrUserNotFound)
		}
		return nil, s.transient("authenticate", err)
	}
	if user.Status == models.UserStatusBlocked {
		return nil, s.fail("authenticate", domerr.ErrUserBlocked)
	}

	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, s.fail("authenticate", domerr.ErrUserNotFound)
		}
		return nil, s.transient("authenticate", err)
	}

	sessionToken, err := s.tokens.IssueSessionToken(ctx, userID)
	if err != nil {
		return nil, s.transient("authenticate", err)
	}

	s.metrics.RecordOperationResult("authenticate", "success")
	return &AuthResult{
		UserID:       user.ID,
		Nickname:     user.Nickname,
		Balance:      wallet.Balance,
		Currency:     wallet.Currency,
		SessionToken: sessionToken,
	}, nil
}

func (s *service) Balance(ctx context.Context, sessionToken string) (*BalanceResult, error) {
	userID, err := s.tokens.ValidateAndConsume(ctx, sessionToken, token.ClassSession)
	if err != nil {
		return nil, domerr.ErrTokenNotFound
	}
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			return nil, domerr.ErrUserNotFound
		}
		return nil, err
	}
	return &BalanceResult{UserID: userID, Balance: wallet.Balance, Currency: wallet.Currency}, nil
}

func (s *service) Debit(ctx context.Context, sessionToken, provider, providerTxID string, amount decimal.Decimal) (*TxResult, error) {
	defer s.timeOp("debit", time.Now())

	userID, err := s.tokens.ValidateAndConsume(ctx, sessionToken, token.ClassSession)
	if err != nil {
		return nil, s.fail("debit", domerr.ErrTokenNotFound)
	}
	if providerTxID == "" {
		return nil, s.fail("debit", domerr.ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, s.fail("debit", domerr.ErrInvalidAmount)
	}

	row := &models.Transaction{
		ProviderTxID: providerTxID,
		OperatorTxID: uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		Kind:         models.TxKindDebit,
		Amount:       amount,
	}
	isNew, existing, err := s.ledger.BeginIfAbsent(ctx, row)
	if err != nil {
		return nil, s.transient("debit", err)
	}
	if !isNew {
		return s.replay(ctx, "debit", existing)
	}

	newBalance, err := s.wallets.ApplyDelta(ctx, userID, amount.Neg(), decimal.Zero)
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			// The failure is a terminal outcome; record it so a duplicate
			// delivery replays the same answer instead of re-trying.
			balance := s.currentBalance(ctx, userID)
			if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
				return nil, s.transient("debit", ferr)
			}
			return nil, s.fail("debit", domerr.ErrInsufficientFunds)
		}
		// The row stays pending; the sweeper resolves it if this attempt
		// never recovers.
		return nil, s.transient("debit", err)
	}

	if err := s.ledger.Finalize(ctx, providerTxID, models.TxStatusCompleted, newBalance.Add(amount), newBalance); err != nil {
		return nil, s.transient("debit", err)
	}
	s.metrics.RecordOperationResult("debit", "success")
	return &TxResult{Balance: newBalance, OperatorTxID: row.OperatorTxID}, nil
}

func (s *service) Credit(ctx context.Context, sessionToken, provider, providerTxID string, amount decimal.Decimal, relatedDebitTxID string) (*TxResult, error) {
	defer s.timeOp("credit", time.Now())

	userID, err := s.tokens.ValidateAndConsume(ctx, sessionToken, token.ClassSession)
	if err != nil {
		return nil, s.fail("credit", domerr.ErrTokenNotFound)
	}
	if providerTxID == "" {
		return nil, s.fail("credit", domerr.ErrValidation)
	}
	if amount.IsNegative() {
		return nil, s.fail("credit", domerr.ErrInvalidAmount)
	}

	row := &models.Transaction{
		ProviderTxID: providerTxID,
		OperatorTxID: uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		Kind:         models.TxKindCredit,
		Amount:       amount,
		RelatedTxID:  relatedDebitTxID,
	}
	isNew, existing, err := s.ledger.BeginIfAbsent(ctx, row)
	if err != nil {
		return nil, s.transient("credit", err)
	}
	// A duplicate providerTxId replays the stored outcome unconditionally,
	// even when the related debit has changed state since; correlation is
	// checked only for a fresh transaction.
	if !isNew {
		return s.replay(ctx, "credit", existing)
	}

	if relatedDebitTxID != "" {
		if cerr := s.checkCreditCorrelation(ctx, relatedDebitTxID); cerr != nil {
			balance := s.currentBalance(ctx, userID)
			if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
				return nil, s.transient("credit", ferr)
			}
			return nil, s.fail("credit", cerr)
		}
	}

	// Credits only increase the balance, so the non-negativity condition
	// can not fail; zero rows here means the wallet is missing.
	newBalance, err := s.wallets.ApplyDelta(ctx, userID, amount, decimal.Zero)
	if err != nil {
		return nil, s.transient("credit", err)
	}

	if err := s.ledger.Finalize(ctx, providerTxID, models.TxStatusCompleted, newBalance.Sub(amount), newBalance); err != nil {
		return nil, s.transient("credit", err)
	}
	s.metrics.RecordOperationResult("credit", "success")
	return &TxResult{Balance: newBalance, OperatorTxID: row.OperatorTxID}, nil
}

// checkCreditCorrelation enforces that a fresh credit referencing a debit
// points at a completed debit that has not already been credited. Duplicate
// deliveries never reach this check; they replay from the ledger first.
func (s *service) checkCreditCorrelation(ctx context.Context, relatedDebitTxID string) error {
	orig, err := s.ledger.FindByProviderTxID(ctx, relatedDebitTxID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return domerr.ErrTransactionNotFound
		}
		return err
	}
	if orig.Kind != models.TxKindDebit || orig.Status != models.TxStatusCompleted {
		return domerr.ErrTransactionNotFound
	}
	// Only completed credits count as prior settlements; the caller's own
	// pending row is already in the ledger at this point.
	prior, err := s.ledger.FindByRelatedTxID(ctx, relatedDebitTxID, models.TxKindCredit, models.TxStatusCompleted)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	return &AlreadyProcessedError{Balance: prior.BalanceAfter}
}

func (s *service) Rollback(ctx context.Context, sessionToken, provider, providerTxID, relatedTxID string, amount decimal.Decimal) (*TxResult, error) {
	defer s.timeOp("rollback", time.Now())

	userID, err := s.tokens.ValidateAndConsume(ctx, sessionToken, token.ClassSession)
	if err != nil {
		return nil, s.fail("rollback", domerr.ErrTokenNotFound)
	}
	if providerTxID == "" || relatedTxID == "" {
		return nil, s.fail("rollback", domerr.ErrValidation)
	}

	// Duplicate deliveries replay the stored outcome before anything else
	// is inspected; BeginIfAbsent below still arbitrates the race between
	// two first deliveries.
	if existing, derr := s.ledger.FindByProviderTxID(ctx, providerTxID); derr == nil {
		return s.replay(ctx, "rollback", existing)
	} else if !errors.Is(derr, repositories.ErrTransactionNotFound) {
		return nil, s.transient("rollback", derr)
	}

	orig, origErr := s.ledger.FindByProviderTxID(ctx, relatedTxID)
	if origErr != nil && !errors.Is(origErr, repositories.ErrTransactionNotFound) {
		return nil, s.transient("rollback", origErr)
	}
	if origErr == nil && orig.Status == models.TxStatusPending {
		// The wager is still in flight. Recording a terminal outcome now
		// would make this rollback id unusable once the wager settles, so
		// no row is written; the answer is transient and the provider's
		// retry reverses the settled wager.
		orig, origErr = s.awaitFinalized(ctx, orig)
		if origErr != nil {
			return nil, s.transient("rollback", origErr)
		}
		if orig.Status == models.TxStatusPending {
			return nil, s.transient("rollback", fmt.Errorf("transaction %s still pending", relatedTxID))
		}
	}

	row := &models.Transaction{
		ProviderTxID: providerTxID,
		OperatorTxID: uuid.NewString(),
		UserID:       userID,
		Provider:     provider,
		Kind:         models.TxKindRollback,
		Amount:       amount,
		RelatedTxID:  relatedTxID,
	}
	isNew, existing, err := s.ledger.BeginIfAbsent(ctx, row)
	if err != nil {
		return nil, s.transient("rollback", err)
	}
	if !isNew {
		return s.replay(ctx, "rollback", existing)
	}

	if errors.Is(origErr, repositories.ErrTransactionNotFound) {
		balance := s.currentBalance(ctx, userID)
		if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
			return nil, s.transient("rollback", ferr)
		}
		return nil, s.fail("rollback", domerr.ErrTransactionNotFound)
	}

	// Only debits and credits are reversible. A relatedTxId pointing at
	// another rollback is treated as an unknown transaction.
	if orig.Kind == models.TxKindRollback {
		balance := s.currentBalance(ctx, userID)
		if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
			return nil, s.transient("rollback", ferr)
		}
		return nil, s.fail("rollback", domerr.ErrTransactionNotFound)
	}

	// Providers call rollback speculatively; reversing a transaction that
	// never completed is a success with no balance effect.
	if orig.Status == models.TxStatusFailed {
		balance := s.currentBalance(ctx, userID)
		if err := s.ledger.Finalize(ctx, providerTxID, models.TxStatusCompleted, balance, balance); err != nil {
			return nil, s.transient("rollback", err)
		}
		s.metrics.RecordOperationResult("rollback", "noop")
		return &TxResult{Balance: balance, OperatorTxID: row.OperatorTxID}, nil
	}

	ok, err := s.ledger.MarkRolledBack(ctx, relatedTxID)
	if err != nil {
		return nil, s.transient("rollback", err)
	}
	if !ok {
		// Already rolled back, or lost the race to another rollback.
		balance := s.currentBalance(ctx, userID)
		if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
			return nil, s.transient("rollback", ferr)
		}
		s.metrics.RecordOperationResult("rollback", "already_processed")
		return nil, &AlreadyProcessedError{Balance: balance}
	}

	// Reverse the original's effect. The ledger row, not the request, is
	// the source of truth for the amount and direction.
	delta := orig.Amount
	if orig.Kind == models.TxKindCredit {
		delta = orig.Amount.Neg()
	}
	newBalance, err := s.wallets.ApplyDelta(ctx, orig.UserID, delta, decimal.Zero)
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientFunds) {
			// Reversing a credit the player has already wagered away would
			// overdraw the wallet. The original stays rolled_back so it can
			// not be credited again; this rollback is reported failed.
			balance := s.currentBalance(ctx, orig.UserID)
			if ferr := s.ledger.Finalize(ctx, providerTxID, models.TxStatusFailed, balance, balance); ferr != nil {
				return nil, s.transient("rollback", ferr)
			}
			return nil, s.fail("rollback", domerr.ErrInsufficientFunds)
		}
		return nil, s.transient("rollback", err)
	}

	if err := s.ledger.Finalize(ctx, providerTxID, models.TxStatusCompleted, newBalance.Sub(delta), newBalance); err != nil {
		return nil, s.transient("rollback", err)
	}
	s.metrics.RecordOperationResult("rollback", "success")
	return &TxResult{Balance: newBalance, OperatorTxID: row.OperatorTxID}, nil
}

func (s *service) RefreshSession(ctx context.Context, sessionToken string) (string, error) {
	fresh, _, err := s.tokens.Refresh(ctx, sessionToken)
	if err != nil {
		return "", domerr.ErrTokenNotFound
	}
	return fresh, nil
}

// replay answers a duplicate delivery from the stored ledger row. The row
// is the source of truth even when the duplicate's parameters differ from
// the original request.
func (s *service) replay(ctx context.Context, op string, existing *models.Transaction) (*TxResult, error) {
	existing, err := s.awaitFinalized(ctx, existing)
	if err != nil {
		return nil, s.transient(op, err)
	}
	s.metrics.RecordOperationResult(op, "replayed")

	switch existing.Status {
	case models.TxStatusCompleted, models.TxStatusRolledBack:
		if existing.Kind == models.TxKindRollback {
			return nil, &AlreadyProcessedError{Balance: existing.BalanceAfter}
		}
		return &TxResult{
			Balance:      existing.BalanceAfter,
			OperatorTxID: existing.OperatorTxID,
			Replayed:     true,
		}, nil
	case models.TxStatusFailed:
		switch existing.Kind {
		case models.TxKindDebit:
			return nil, domerr.ErrInsufficientFunds
		case models.TxKindRollback:
			return nil, &AlreadyProcessedError{Balance: existing.BalanceAfter}
		default:
			return nil, domerr.ErrTransactionNotFound
		}
	default:
		return nil, s.transient(op, fmt.Errorf("transaction %s still pending", existing.ProviderTxID))
	}
}

// awaitFinalized briefly re-reads a pending row so the loser of a
// simultaneous duplicate delivery can replay the winner's outcome. If the
// winner in flight does not finalize within the window the duplicate is
// answered as a transient failure and the provider retries later.
func (s *service) awaitFinalized(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	const (
		attempts = 5
		pause    = 50 * time.Millisecond
	)
	for i := 0; tx.Status == models.TxStatusPending && i < attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
		fresh, err := s.ledger.FindByProviderTxID(ctx, tx.ProviderTxID)
		if err != nil {
			return nil, err
		}
		tx = fresh
	}
	return tx, nil
}

// currentBalance is a best-effort read used only to fill response and
// ledger bookkeeping fields; it never feeds a balance mutation.
func (s *service) currentBalance(ctx context.Context, userID uint) decimal.Decimal {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero
	}
	return wallet.Balance
}

func (s *service) fail(op string, err error) error {
	var de *domerr.DomainError
	if errors.As(err, &de) {
		s.metrics.RecordOperationResult(op, de.Code)
	} else {
		s.metrics.RecordOperationResult(op, "error")
	}
	return err
}

func (s *service) transient(op string, err error) error {
	s.metrics.RecordError(op, "store")
	return &domerr.TransientStoreError{Op: op, Err: err}
}

func (s *service) timeOp(op string, start time.Time) {
	s.metrics.RecordOperationDuration(op, time.Since(start))
}

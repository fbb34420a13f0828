package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"betcore/internal/config"
	domerr "betcore/internal/errors"
	"betcore/internal/models"
	"betcore/internal/repositories"
	"betcore/internal/services/token"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory fakes. The mutexes reproduce the atomicity the real
// repositories get from single-statement conditional updates, so the
// concurrency properties under test are exercised for real.

type memUsers struct {
	mu   sync.Mutex
	byID map[uint]*models.User
}

func (m *memUsers) GetByID(_ context.Context, userID uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetStatus(_ context.Context, userID uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.Status = status
	return nil
}

type memWallets struct {
	mu     sync.Mutex
	byUser map[uint]*models.Wallet
}

func (m *memWallets) Create(_ context.Context, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[w.UserID] = w
	return nil
}

func (m *memWallets) GetByUserID(_ context.Context, userID uint) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byUser[userID]
	if !ok {
		return nil, repositories.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) ApplyDelta(_ context.Context, userID uint, delta, minResulting decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byUser[userID]
	if !ok {
		return decimal.Zero, repositories.ErrWalletNotFound
	}
	next := w.Balance.Add(delta)
	if next.LessThan(minResulting) {
		return decimal.Zero, repositories.ErrInsufficientFunds
	}
	w.Balance = next
	return next, nil
}

type memLedger struct {
	mu   sync.Mutex
	rows map[string]*models.Transaction
}

func (m *memLedger) BeginIfAbsent(_ context.Context, tx *models.Transaction) (bool, *models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ex, ok := m.rows[tx.ProviderTxID]; ok {
		cp := *ex
		return false, &cp, nil
	}
	tx.Status = models.TxStatusPending
	tx.CreatedAt = time.Now()
	cp := *tx
	m.rows[tx.ProviderTxID] = &cp
	return true, nil, nil
}

func (m *memLedger) Finalize(_ context.Context, providerTxID, status string, before, after decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[providerTxID]
	if !ok || row.Status != models.TxStatusPending {
		return repositories.ErrTransactionNotFound
	}
	row.Status = status
	row.BalanceBefore = before
	row.BalanceAfter = after
	return nil
}

func (m *memLedger) MarkRolledBack(_ context.Context, relatedTxID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[relatedTxID]
	if !ok || row.Status != models.TxStatusCompleted {
		return false, nil
	}
	row.Status = models.TxStatusRolledBack
	return true, nil
}

func (m *memLedger) FindByProviderTxID(_ context.Context, providerTxID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[providerTxID]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memLedger) FindByRelatedTxID(_ context.Context, relatedTxID, kind, status string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RelatedTxID == relatedTxID && row.Kind == kind && row.Status == status {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (m *memLedger) FailStalePending(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Status == models.TxStatusPending && row.CreatedAt.Before(olderThan) {
			row.Status = models.TxStatusFailed
			n++
		}
	}
	return n, nil
}

type stubTokens struct {
	mu       sync.Mutex
	launches map[string]uint
	sessions map[string]uint
	seq      int
}

func newStubTokens() *stubTokens {
	return &stubTokens{launches: map[string]uint{}, sessions: map[string]uint{}}
}

func (s *stubTokens) IssueLaunchToken(_ context.Context, userID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	tok := fmt.Sprintf("launch-%d", s.seq)
	s.launches[tok] = userID
	return tok, nil
}

func (s *stubTokens) IssueSessionToken(_ context.Context, userID uint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	tok := fmt.Sprintf("session-%d", s.seq)
	s.sessions[tok] = userID
	return tok, nil
}

func (s *stubTokens) ValidateAndConsume(_ context.Context, tok string, class token.Class) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if class == token.ClassLaunch {
		userID, ok := s.launches[tok]
		if !ok {
			return 0, domerr.ErrTokenNotFound
		}
		delete(s.launches, tok)
		return userID, nil
	}
	userID, ok := s.sessions[tok]
	if !ok {
		return 0, domerr.ErrTokenNotFound
	}
	return userID, nil
}

func (s *stubTokens) Refresh(ctx context.Context, sessionToken string) (string, uint, error) {
	userID, err := s.ValidateAndConsume(ctx, sessionToken, token.ClassSession)
	if err != nil {
		return "", 0, err
	}
	fresh, _ := s.IssueSessionToken(ctx, userID)
	s.mu.Lock()
	delete(s.sessions, sessionToken)
	s.mu.Unlock()
	return fresh, userID, nil
}

func (s *stubTokens) Invalidate(_ context.Context, tok string, class token.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if class == token.ClassLaunch {
		delete(s.launches, tok)
	} else {
		delete(s.sessions, tok)
	}
	return nil
}

// --- Test harness

type fixture struct {
	svc     Service
	users   *memUsers
	wallets *memWallets
	ledger  *memLedger
	tokens  *stubTokens
	session string
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	users := &memUsers{byID: map[uint]*models.User{
		1: {ID: 1, Nickname: "player1", Status: models.UserStatusActive},
	}}
	wallets := &memWallets{byUser: map[uint]*models.Wallet{
		1: {ID: 1, UserID: 1, Balance: money(balance), Currency: "USD"},
	}}
	ledger := &memLedger{rows: map[string]*models.Transaction{}}
	tokens := newStubTokens()
	svc := NewService(users, wallets, ledger, tokens, config.GatewayConfig{DefaultCurrency: "USD"}, nil)

	session, err := tokens.IssueSessionToken(context.Background(), 1)
	require.NoError(t, err)
	return &fixture{svc: svc, users: users, wallets: wallets, ledger: ledger, tokens: tokens, session: session}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	w, err := f.wallets.GetByUserID(context.Background(), 1)
	require.NoError(t, err)
	return w.Balance
}

// --- Authenticate

func TestAuthenticateHappyPath(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	launch, err := f.tokens.IssueLaunchToken(ctx, 1)
	require.NoError(t, err)

	res, err := f.svc.Authenticate(ctx, launch)
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.UserID)
	assert.Equal(t, "player1", res.Nickname)
	assert.True(t, money("1000.00").Equal(res.Balance))
	assert.Equal(t, "USD", res.Currency)
	assert.NotEmpty(t, res.SessionToken)
}

func TestAuthenticateConsumedLaunchToken(t *testing.T) {
	// Scenario E: a launch token authenticates exactly once.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	launch, err := f.tokens.IssueLaunchToken(ctx, 1)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, launch)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, launch)
	assert.ErrorIs(t, err, domerr.ErrTokenNotFound)
}

func TestAuthenticateBlockedUser(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()
	require.NoError(t, f.users.SetStatus(ctx, 1, models.UserStatusBlocked))

	launch, err := f.tokens.IssueLaunchToken(ctx, 1)
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, launch)
	assert.ErrorIs(t, err, domerr.ErrUserBlocked)
}

func TestAuthenticateUnknownToken(t *testing.T) {
	f := newFixture(t, "1000.00")
	_, err := f.svc.Authenticate(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, domerr.ErrTokenNotFound)
}

// --- Debit

func TestDebitThenIdempotentReplay(t *testing.T) {
	// Scenario A: the duplicate returns the same response and moves nothing.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	res, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	assert.True(t, money("600.00").Equal(res.Balance))
	assert.False(t, res.Replayed)

	res2, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	assert.True(t, money("600.00").Equal(res2.Balance))
	assert.True(t, res2.Replayed)
	assert.True(t, money("600.00").Equal(f.balance(t)))

	row, err := f.ledger.FindByProviderTxID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, row.Status)
}

func TestDebitReplayIgnoresChangedParameters(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)

	// Same providerTxId, different amount: the ledger row wins.
	res, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("999.00"))
	require.NoError(t, err)
	assert.True(t, money("600.00").Equal(res.Balance))
	assert.True(t, money("600.00").Equal(f.balance(t)))
}

func TestDebitInsufficientFunds(t *testing.T) {
	// Scenario B: the wager exceeds the balance; nothing moves.
	f := newFixture(t, "600.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d2", money("1000.00"))
	assert.ErrorIs(t, err, domerr.ErrInsufficientFunds)
	assert.True(t, money("600.00").Equal(f.balance(t)))

	row, err := f.ledger.FindByProviderTxID(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusFailed, row.Status)
}

func TestDebitFailureReplaysOriginalFailure(t *testing.T) {
	f := newFixture(t, "600.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d2", money("1000.00"))
	require.ErrorIs(t, err, domerr.ErrInsufficientFunds)

	// Re-send after a top-up would have made it succeed; the stored
	// outcome still wins.
	_, err = f.wallets.ApplyDelta(ctx, 1, money("10000.00"), decimal.Zero)
	require.NoError(t, err)
	_, err = f.svc.Debit(ctx, f.session, "classic", "d2", money("1000.00"))
	assert.ErrorIs(t, err, domerr.ErrInsufficientFunds)
}

func TestDebitValidation(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "", money("1.00"))
	assert.ErrorIs(t, err, domerr.ErrValidation)

	_, err = f.svc.Debit(ctx, f.session, "classic", "dx", money("0"))
	assert.ErrorIs(t, err, domerr.ErrInvalidAmount)

	_, err = f.svc.Debit(ctx, f.session, "classic", "dx", money("-5.00"))
	assert.ErrorIs(t, err, domerr.ErrInvalidAmount)

	_, err = f.svc.Debit(ctx, "bad-session", "classic", "dx", money("5.00"))
	assert.ErrorIs(t, err, domerr.ErrTokenNotFound)
}

func TestDebitNonNegativity(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.svc.Debit(ctx, f.session, "classic", fmt.Sprintf("nn-%d", i), money("30.00"))
		assert.False(t, f.balance(t).IsNegative())
	}
	assert.True(t, money("10.00").Equal(f.balance(t)))
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	// N concurrent debits of balance/N: every interleaving keeps the
	// balance non-negative.
	const n = 10
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Debit(ctx, f.session, "classic", fmt.Sprintf("c-%d", i), money("100.00"))
		}(i)
	}
	wg.Wait()

	assert.True(t, f.balance(t).Equal(decimal.Zero), "balance %s", f.balance(t))
}

func TestConcurrentDuplicateDebitAppliesOnce(t *testing.T) {
	const n = 8
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Debit(ctx, f.session, "classic", "dup", money("400.00"))
		}()
	}
	wg.Wait()

	assert.True(t, money("600.00").Equal(f.balance(t)), "balance %s", f.balance(t))
}

// --- Credit

func TestCreditWithCorrelationAndReplay(t *testing.T) {
	// Scenario C.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)

	res, err := f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "d1")
	require.NoError(t, err)
	assert.True(t, money("800.00").Equal(res.Balance))

	res2, err := f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "d1")
	require.NoError(t, err)
	assert.True(t, money("800.00").Equal(res2.Balance))
	assert.True(t, res2.Replayed)
	assert.True(t, money("800.00").Equal(f.balance(t)))
}

func TestCreditUnknownRelatedDebit(t *testing.T) {
	f := newFixture(t, "600.00")
	ctx := context.Background()

	_, err := f.svc.Credit(ctx, f.session, "classic", "c9", money("200.00"), "missing-debit")
	assert.ErrorIs(t, err, domerr.ErrTransactionNotFound)
	assert.True(t, money("600.00").Equal(f.balance(t)))
}

func TestCreditAgainstFailedDebitRejected(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "df", money("500.00"))
	require.ErrorIs(t, err, domerr.ErrInsufficientFunds)

	_, err = f.svc.Credit(ctx, f.session, "classic", "cf", money("50.00"), "df")
	assert.ErrorIs(t, err, domerr.ErrTransactionNotFound)
	assert.True(t, money("100.00").Equal(f.balance(t)))
}

func TestSecondCreditAgainstSameDebitRejected(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	_, err = f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "d1")
	require.NoError(t, err)

	// Different providerTxId against the same debit is a correlation
	// violation, not a replay.
	_, err = f.svc.Credit(ctx, f.session, "classic", "c2", money("200.00"), "d1")
	assert.ErrorIs(t, err, domerr.ErrAlreadyProcessed)
	assert.True(t, money("800.00").Equal(f.balance(t)))
}

func TestCreditReplayAfterRelatedDebitRolledBack(t *testing.T) {
	// A duplicate credit replays its stored outcome even when the related
	// debit has been rolled back since the first delivery.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	_, err = f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "d1")
	require.NoError(t, err)
	_, err = f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	require.NoError(t, err)
	require.True(t, money("1200.00").Equal(f.balance(t)))

	res, err := f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "d1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.True(t, money("800.00").Equal(res.Balance))
	assert.True(t, money("1200.00").Equal(f.balance(t)))
}

func TestNewCreditAgainstRolledBackDebitRejected(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	_, err = f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	require.NoError(t, err)

	_, err = f.svc.Credit(ctx, f.session, "classic", "c9", money("200.00"), "d1")
	assert.ErrorIs(t, err, domerr.ErrTransactionNotFound)
	assert.True(t, money("1000.00").Equal(f.balance(t)))

	// The rejection is a terminal outcome recorded on the ledger.
	row, err := f.ledger.FindByProviderTxID(ctx, "c9")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusFailed, row.Status)
}

func TestCreditWithoutCorrelation(t *testing.T) {
	f := newFixture(t, "600.00")
	ctx := context.Background()

	res, err := f.svc.Credit(ctx, f.session, "classic", "cw", money("150.00"), "")
	require.NoError(t, err)
	assert.True(t, money("750.00").Equal(res.Balance))
}

// --- Rollback

func TestRollbackReversesDebitOnce(t *testing.T) {
	// Scenario D.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)

	res, err := f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	require.NoError(t, err)
	assert.True(t, money("1000.00").Equal(res.Balance))

	// Duplicate rollback: balance unchanged, ALREADY_PROCESSED.
	_, err = f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	assert.ErrorIs(t, err, domerr.ErrAlreadyProcessed)
	assert.True(t, money("1000.00").Equal(f.balance(t)))

	row, err := f.ledger.FindByProviderTxID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusRolledBack, row.Status)
}

func TestSecondRollbackDifferentTxIDRejected(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)
	_, err = f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	require.NoError(t, err)

	// A fresh rollback id against the already reversed transaction must
	// not reverse it twice.
	_, err = f.svc.Rollback(ctx, f.session, "classic", "r2", "d1", money("400.00"))
	assert.ErrorIs(t, err, domerr.ErrAlreadyProcessed)
	assert.True(t, money("1000.00").Equal(f.balance(t)))
}

func TestRollbackOfCreditSubtracts(t *testing.T) {
	f := newFixture(t, "600.00")
	ctx := context.Background()

	_, err := f.svc.Credit(ctx, f.session, "classic", "c1", money("200.00"), "")
	require.NoError(t, err)

	res, err := f.svc.Rollback(ctx, f.session, "classic", "r1", "c1", money("200.00"))
	require.NoError(t, err)
	assert.True(t, money("600.00").Equal(res.Balance))
}

func TestRollbackOfFailedDebitIsNoopSuccess(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "df", money("500.00"))
	require.ErrorIs(t, err, domerr.ErrInsufficientFunds)

	res, err := f.svc.Rollback(ctx, f.session, "classic", "rf", "df", money("500.00"))
	require.NoError(t, err)
	assert.True(t, money("100.00").Equal(res.Balance))
	assert.True(t, money("100.00").Equal(f.balance(t)))
}

func TestRollbackUnknownTransaction(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	_, err := f.svc.Rollback(ctx, f.session, "classic", "rx", "no-such-tx", money("10.00"))
	assert.ErrorIs(t, err, domerr.ErrTransactionNotFound)
	assert.True(t, money("100.00").Equal(f.balance(t)))
}

func TestRollbackUsesLedgerAmountNotRequestAmount(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)

	// Request claims a different amount; the original row's 400.00 wins.
	res, err := f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("999.00"))
	require.NoError(t, err)
	assert.True(t, money("1000.00").Equal(res.Balance))
}

func TestRollbackOfPendingOriginalIsRetryable(t *testing.T) {
	// A rollback racing its own wager must not record a terminal outcome:
	// the same rollback id has to work once the wager settles.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	pending := &models.Transaction{
		ProviderTxID: "d1",
		UserID:       1,
		Kind:         models.TxKindDebit,
		Amount:       money("400.00"),
	}
	isNew, _, err := f.ledger.BeginIfAbsent(ctx, pending)
	require.NoError(t, err)
	require.True(t, isNew)

	_, err = f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	var transient *domerr.TransientStoreError
	require.ErrorAs(t, err, &transient)

	// No rollback row was written, so the id is not poisoned.
	_, err = f.ledger.FindByProviderTxID(ctx, "r1")
	assert.ErrorIs(t, err, repositories.ErrTransactionNotFound)
	assert.True(t, money("1000.00").Equal(f.balance(t)))

	// The wager settles; the retried rollback reverses it.
	_, err = f.wallets.ApplyDelta(ctx, 1, money("-400.00"), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Finalize(ctx, "d1", models.TxStatusCompleted, money("1000.00"), money("600.00")))

	res, err := f.svc.Rollback(ctx, f.session, "classic", "r1", "d1", money("400.00"))
	require.NoError(t, err)
	assert.True(t, money("1000.00").Equal(res.Balance))
	assert.True(t, money("1000.00").Equal(f.balance(t)))
}

func TestConcurrentRollbacksReverseOnce(t *testing.T) {
	const n = 8
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	_, err := f.svc.Debit(ctx, f.session, "classic", "d1", money("400.00"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Rollback(ctx, f.session, "classic", fmt.Sprintf("r-%d", i), "d1", money("400.00"))
		}(i)
	}
	wg.Wait()

	assert.True(t, money("1000.00").Equal(f.balance(t)), "balance %s", f.balance(t))
}

// --- Session refresh and balance

func TestRefreshSession(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	fresh, err := f.svc.RefreshSession(ctx, f.session)
	require.NoError(t, err)
	assert.NotEqual(t, f.session, fresh)

	// The old token no longer authenticates.
	_, err = f.svc.Debit(ctx, f.session, "classic", "d1", money("1.00"))
	assert.ErrorIs(t, err, domerr.ErrTokenNotFound)

	res, err := f.svc.Debit(ctx, fresh, "classic", "d1", money("1.00"))
	require.NoError(t, err)
	assert.True(t, money("999.00").Equal(res.Balance))
}

func TestBalanceQuery(t *testing.T) {
	f := newFixture(t, "432.10")
	res, err := f.svc.Balance(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.UserID)
	assert.True(t, money("432.10").Equal(res.Balance))
	assert.Equal(t, "USD", res.Currency)
}

// --- Sweeper

func TestSweeperFailsStalePending(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	stale := &models.Transaction{
		ProviderTxID: "stuck",
		UserID:       1,
		Kind:         models.TxKindDebit,
		Amount:       money("50.00"),
	}
	isNew, _, err := f.ledger.BeginIfAbsent(ctx, stale)
	require.NoError(t, err)
	require.True(t, isNew)
	f.ledger.mu.Lock()
	f.ledger.rows["stuck"].CreatedAt = time.Now().Add(-10 * time.Minute)
	f.ledger.mu.Unlock()

	sw := NewSweeper(f.ledger, 2*time.Minute, time.Second)
	sw.sweep(ctx)

	row, err := f.ledger.FindByProviderTxID(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusFailed, row.Status)

	// A later duplicate delivery now replays the failure instead of
	// waiting on a dead attempt.
	_, err = f.svc.Debit(ctx, f.session, "classic", "stuck", money("50.00"))
	assert.ErrorIs(t, err, domerr.ErrInsufficientFunds)
}

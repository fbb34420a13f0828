package gateway

import (
	"context"
	"log"
	"time"

	"betcore/internal/repositories"
)

// Sweeper fails ledger rows stuck in pending past the configured timeout,
// so a later duplicate delivery is not mistaken for an in-flight attempt
// after a crashed one. The balance was never mutated for such rows; the
// conditional update and the finalize happen in the same request or not at
// all.
type Sweeper struct {
	ledger   repositories.LedgerRepository
	timeout  time.Duration
	interval time.Duration
}

func NewSweeper(ledger repositories.LedgerRepository, timeout, interval time.Duration) *Sweeper {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{ledger: ledger, timeout: timeout, interval: interval}
}

// Run blocks until ctx is canceled, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.ledger.FailStalePending(ctx, time.Now().Add(-s.timeout))
	if err != nil {
		log.Printf("pending sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("pending sweep failed %d stale transactions", n)
	}
}

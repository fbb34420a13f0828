// Package token implements the token authority: launch tokens that
// authenticate exactly one game-launch call, and session tokens that
// authenticate the debit/credit/rollback callbacks of one play session.
package token

import (
	"context"
	"fmt"
	"time"

	"betcore/internal/config"
	domerr "betcore/internal/errors"
	"betcore/internal/utils"
)

// Class separates the two token kinds. A token issued as one class never
// validates as the other.
type Class string

const (
	ClassLaunch  Class = "launch"
	ClassSession Class = "session"
)

// Store is the expiring key-value backing. Implemented by cache.RedisStore;
// tests may substitute an in-memory map.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	GetDel(ctx context.Context, key string, dest interface{}) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Clock allows deterministic expiry behavior in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// record is what a token key maps to in the store.
type record struct {
	UserID    uint      `json:"user_id"`
	Class     Class     `json:"class"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and validates launch and session tokens.
type Service interface {
	IssueLaunchToken(ctx context.Context, userID uint) (string, error)
	IssueSessionToken(ctx context.Context, userID uint) (string, error)
	// ValidateAndConsume resolves a token to its user. Launch tokens are
	// deleted on success (single use); session tokens stay until refresh or
	// expiry. Any store error, missing record, expired record, or class
	// mismatch fails closed as ErrTokenNotFound.
	ValidateAndConsume(ctx context.Context, tok string, class Class) (uint, error)
	// Refresh replaces (not extends) a session token: the old one is
	// invalidated and a fresh one issued for the same user.
	Refresh(ctx context.Context, sessionToken string) (string, uint, error)
	Invalidate(ctx context.Context, tok string, class Class) error
}

type service struct {
	store Store
	cfg   config.TokenConfig
	clock Clock
}

func NewService(store Store, cfg config.TokenConfig, clock Clock) Service {
	if store == nil {
		panic("store is required")
	}
	if clock == nil {
		clock = RealClock()
	}
	if cfg.LaunchTTL == 0 {
		cfg.LaunchTTL = 60 * time.Second
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 40 * time.Minute
	}
	return &service{store: store, cfg: cfg, clock: clock}
}

func (s *service) IssueLaunchToken(ctx context.Context, userID uint) (string, error) {
	return s.issue(ctx, userID, ClassLaunch, s.cfg.LaunchTTL)
}

func (s *service) IssueSessionToken(ctx context.Context, userID uint) (string, error) {
	return s.issue(ctx, userID, ClassSession, s.cfg.SessionTTL)
}

func (s *service) issue(ctx context.Context, userID uint, class Class, ttl time.Duration) (string, error) {
	tok, err := utils.GenerateSecureCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	rec := record{
		UserID:    userID,
		Class:     class,
		ExpiresAt: s.clock.Now().Add(ttl),
	}
	if err := s.store.Set(ctx, key(class, tok), rec, ttl); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return tok, nil
}

func (s *service) ValidateAndConsume(ctx context.Context, tok string, class Class) (uint, error) {
	if tok == "" {
		return 0, domerr.ErrTokenNotFound
	}
	var rec record
	var found bool
	var err error
	if class == ClassLaunch {
		found, err = s.store.GetDel(ctx, key(class, tok), &rec)
	} else {
		found, err = s.store.Get(ctx, key(class, tok), &rec)
	}
	if err != nil || !found {
		return 0, domerr.ErrTokenNotFound
	}
	if rec.Class != class {
		return 0, domerr.ErrTokenNotFound
	}
	if s.clock.Now().After(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, key(class, tok))
		return 0, domerr.ErrTokenNotFound
	}
	return rec.UserID, nil
}

func (s *service) Refresh(ctx context.Context, sessionToken string) (string, uint, error) {
	userID, err := s.ValidateAndConsume(ctx, sessionToken, ClassSession)
	if err != nil {
		return "", 0, err
	}
	fresh, err := s.IssueSessionToken(ctx, userID)
	if err != nil {
		return "", 0, err
	}
	if err := s.Invalidate(ctx, sessionToken, ClassSession); err != nil {
		return "", 0, err
	}
	return fresh, userID, nil
}

func (s *service) Invalidate(ctx context.Context, tok string, class Class) error {
	return s.store.Delete(ctx, key(class, tok))
}

func key(class Class, tok string) string {
	return "token:" + string(class) + ":" + tok
}

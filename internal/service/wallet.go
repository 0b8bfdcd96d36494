package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ludum/internal/model"
)

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount must not have sub-cent precision")
	ErrInsufficientFunds = errors.New("insufficient spendable funds")
	ErrAlreadyProcessed  = errors.New("request already processed")
	ErrNotFound          = errors.New("not found")
)

// checkAmount gates every monetary input. Balances are persisted in whole
// cents, so anything finer than two decimal places is rejected up front
// rather than silently truncated downstream.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if !amount.Equal(amount.Truncate(2)) {
		return ErrAmountPrecision
	}
	return nil
}

// WalletStore persists balances and holds. The production store keeps the
// hot balance in Redis backed by Postgres; MemoryStore backs tests and
// embedded use. TopUp publishes the confirmed event when a bus is wired.
type WalletStore interface {
	TopUp(ctx context.Context, event model.TopUpEvent) (model.WalletBalance, error)
	Spend(ctx context.Context, accountID string, amount decimal.Decimal, now time.Time, idemKey string) (model.WalletBalance, error)
	Balance(ctx context.Context, accountID string, now time.Time) (model.WalletBalance, error)
}

// WalletService owns the hold policy: confirmed top-ups above the
// threshold are locked for the anti-fraud window. It is the sole mutator
// of wallet balances; every write runs inside its critical section.
type WalletService struct {
	mu        sync.Mutex
	store     WalletStore
	clock     Clock
	threshold decimal.Decimal
	holdFor   time.Duration
}

func NewWalletService(store WalletStore, clock Clock, threshold decimal.Decimal, holdFor time.Duration) *WalletService {
	return &WalletService{store: store, clock: clock, threshold: threshold, holdFor: holdFor}
}

// ApplyTopUp credits a settled funding amount. Amounts above the
// threshold additionally create a hold of the full amount releasing after
// the anti-fraud window. Key identifies the funding attempt so the sync
// worker can persist it exactly once.
func (s *WalletService) ApplyTopUp(ctx context.Context, accountID string, amount decimal.Decimal, key string) (model.WalletBalance, error) {
	if err := checkAmount(amount); err != nil {
		return model.WalletBalance{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	event := model.TopUpEvent{
		Key:       key,
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: now,
	}
	if amount.GreaterThan(s.threshold) {
		event.Hold = &model.Hold{
			ID:        uuid.New(),
			AccountID: accountID,
			Amount:    amount,
			CreatedAt: now,
			ReleaseAt: now.Add(s.holdFor),
		}
	}
	return s.store.TopUp(ctx, event)
}

// Spend debits the account, honoring active holds: only the spendable
// portion of the balance can be consumed.
func (s *WalletService) Spend(ctx context.Context, req model.SpendRequest) (*model.SpendResult, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bal, err := s.store.Spend(ctx, req.AccountID, req.Amount, s.clock.Now(), req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	return &model.SpendResult{NewBalance: bal.Total, Status: "SUCCESS"}, nil
}

func (s *WalletService) Balance(ctx context.Context, accountID string) (model.WalletBalance, error) {
	return s.store.Balance(ctx, accountID, s.clock.Now())
}

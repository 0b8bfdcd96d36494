package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ludum/internal/model"
)

// MemoryStore is the in-process WalletStore: plain mutation, no I/O, no
// partial failure. The service runs against it when no Redis/Postgres
// pair is wired; tests use it throughout.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
	applied  map[string]struct{}
}

type memAccount struct {
	balance decimal.Decimal
	holds   []model.Hold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*memAccount),
		applied:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) account(id string) *memAccount {
	acc, ok := s.accounts[id]
	if !ok {
		acc = &memAccount{balance: decimal.Zero}
		s.accounts[id] = acc
	}
	return acc
}

func (s *MemoryStore) TopUp(_ context.Context, event model.TopUpEvent) (model.WalletBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.applied[event.Key]; done {
		return model.WalletBalance{}, ErrAlreadyProcessed
	}
	s.applied[event.Key] = struct{}{}

	acc := s.account(event.AccountID)
	acc.balance = acc.balance.Add(event.Amount)
	if event.Hold != nil {
		acc.holds = append(acc.holds, *event.Hold)
	}
	return s.snapshot(event.AccountID, event.CreatedAt), nil
}

func (s *MemoryStore) Spend(_ context.Context, accountID string, amount decimal.Decimal, now time.Time, idemKey string) (model.WalletBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idemKey != "" {
		if _, done := s.applied[idemKey]; done {
			return model.WalletBalance{}, ErrAlreadyProcessed
		}
	}

	acc := s.account(accountID)
	spendable := acc.balance.Sub(heldSum(acc.holds, now))
	if spendable.LessThan(amount) {
		return model.WalletBalance{}, ErrInsufficientFunds
	}
	acc.balance = acc.balance.Sub(amount)
	if idemKey != "" {
		s.applied[idemKey] = struct{}{}
	}
	return s.snapshot(accountID, now), nil
}

func (s *MemoryStore) Balance(_ context.Context, accountID string, now time.Time) (model.WalletBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(accountID, now), nil
}

// snapshot trims released holds and computes the spendable figure.
// Callers hold s.mu.
func (s *MemoryStore) snapshot(accountID string, now time.Time) model.WalletBalance {
	acc := s.account(accountID)

	active := acc.holds[:0]
	for _, h := range acc.holds {
		if h.Active(now) {
			active = append(active, h)
		}
	}
	acc.holds = active

	holds := make([]model.Hold, len(acc.holds))
	copy(holds, acc.holds)

	return model.WalletBalance{
		AccountID: accountID,
		Total:     acc.balance,
		Spendable: acc.balance.Sub(heldSum(acc.holds, now)),
		Holds:     holds,
	}
}

func heldSum(holds []model.Hold, now time.Time) decimal.Decimal {
	sum := decimal.Zero
	for _, h := range holds {
		if h.Active(now) {
			sum = sum.Add(h.Amount)
		}
	}
	return sum
}

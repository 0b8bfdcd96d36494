package service

import (
	"context"
	"sync"
	"time"

	"ludum/internal/model"
)

// Settler is the external payment processor boundary. Resolve blocks
// (context-aware) until the processor reports the outcome of a funding
// attempt.
type Settler interface {
	Resolve(ctx context.Context, method model.PaymentMethod) (bool, error)
}

// Simulator stands in for the processor: it waits a fixed per-instrument
// delay and reports the injected outcome. The default outcome is
// unconditional success; a decline path exists only through SetOutcome.
type Simulator struct {
	clock     Clock
	cardDelay time.Duration
	pixDelay  time.Duration

	mu      sync.Mutex
	outcome func(model.PaymentMethod) bool
}

func NewSimulator(clock Clock, cardDelay, pixDelay time.Duration) *Simulator {
	return &Simulator{
		clock:     clock,
		cardDelay: cardDelay,
		pixDelay:  pixDelay,
		outcome:   func(model.PaymentMethod) bool { return true },
	}
}

// SetOutcome injects the settlement result. Intended for tests and for
// wiring a real processor decision in front of the delay. Safe to call
// while resolutions are in flight.
func (s *Simulator) SetOutcome(f func(model.PaymentMethod) bool) {
	s.mu.Lock()
	s.outcome = f
	s.mu.Unlock()
}

func (s *Simulator) Resolve(ctx context.Context, method model.PaymentMethod) (bool, error) {
	delay := s.pixDelay
	if method == model.MethodCard {
		delay = s.cardDelay
	}
	if err := s.clock.Sleep(ctx, delay); err != nil {
		return false, err
	}
	s.mu.Lock()
	outcome := s.outcome
	s.mu.Unlock()
	return outcome(method), nil
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TopUpRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type SpendRequest struct {
	AccountID      string          `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// SpendEvent is a confirmed debit, mirrored to Postgres by the sync
// worker.
type SpendEvent struct {
	AccountID      string          `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
}

type SpendResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	Status     string          `json:"status"`
}

// TopUpEvent is a confirmed top-up applied to the ledger. Key identifies
// the funding attempt (the payment session id); the sync worker uses it
// to persist the event to Postgres exactly once.
type TopUpEvent struct {
	Key       string          `json:"key"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Hold      *Hold           `json:"hold,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

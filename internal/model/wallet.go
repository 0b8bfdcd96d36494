package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Hold is a time-boxed restriction on freshly deposited funds. Funds under
// an active hold count toward the total balance but are not spendable until
// ReleaseAt has passed.
type Hold struct {
	ID        uuid.UUID       `json:"id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	ReleaseAt time.Time       `json:"release_at"`
}

// Active reports whether the hold still restricts spending at the given time.
func (h Hold) Active(now time.Time) bool {
	return now.Before(h.ReleaseAt)
}

// WalletBalance is a point-in-time snapshot of an account's funds.
type WalletBalance struct {
	AccountID string          `json:"account_id"`
	Total     decimal.Decimal `json:"total"`
	Spendable decimal.Decimal `json:"spendable"`
	Holds     []Hold          `json:"holds,omitempty"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Game is a catalog entry. Price zero means the title is free.
type Game struct {
	ID          uuid.UUID       `json:"id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Developer   string          `json:"developer"`
	Price       decimal.Decimal `json:"price"`
	ReleaseDate time.Time       `json:"release_date"`
}

func (g Game) Free() bool {
	return g.Price.IsZero()
}

// LibraryEntry records ownership of a game. The set is append-only and
// idempotent: adding an already-owned id is a no-op.
type LibraryEntry struct {
	AccountID string    `json:"account_id"`
	GameID    uuid.UUID `json:"game_id"`
	AddedAt   time.Time `json:"added_at"`
}

package service

import (
	"context"

	"github.com/google/uuid"

	"ludum/internal/model"
	"ludum/internal/notify"
)

// Catalog is the read-only storefront lookup. Backed by Postgres in
// production and by fixtures in tests.
type Catalog interface {
	Lookup(ctx context.Context, id uuid.UUID) (model.Game, error)
	BySlug(ctx context.Context, slug string) (model.Game, error)
	List(ctx context.Context) ([]model.Game, error)
}

// Library is the ownership store. AddOwned is append-only and idempotent.
type Library interface {
	AddOwned(ctx context.Context, accountID string, gameID uuid.UUID) error
	List(ctx context.Context, accountID string) ([]model.LibraryEntry, error)
}

// PurchaseResult reports what a purchase attempt did. Owned means the
// title is already in the library; otherwise SessionID points at the
// payment session the caller must drive to completion.
type PurchaseResult struct {
	Owned     bool       `json:"owned"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

// PurchaseService acquires titles: free ones go straight into the
// library, priced ones route through a payment session. A game id never
// reaches the library on a failed or pending session.
type PurchaseService struct {
	catalog  Catalog
	library  Library
	payments *PaymentService
	notifier notify.Notifier
}

func NewPurchaseService(catalog Catalog, library Library, payments *PaymentService, notifier notify.Notifier) *PurchaseService {
	return &PurchaseService{catalog: catalog, library: library, payments: payments, notifier: notifier}
}

func (s *PurchaseService) Purchase(ctx context.Context, accountID string, gameID uuid.UUID) (PurchaseResult, error) {
	game, err := s.catalog.Lookup(ctx, gameID)
	if err != nil {
		return PurchaseResult{}, err
	}

	if game.Free() {
		if err := s.library.AddOwned(ctx, accountID, game.ID); err != nil {
			return PurchaseResult{}, err
		}
		s.notifier.Notify(ctx, notify.AddedToLibrary(accountID, game.Title))
		return PurchaseResult{Owned: true}, nil
	}

	sess, err := s.payments.CreatePurchase(ctx, accountID, game)
	if err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{SessionID: &sess.ID}, nil
}

// Game resolves a catalog entry by slug for the game-detail entry point.
func (s *PurchaseService) Game(ctx context.Context, slug string) (model.Game, error) {
	return s.catalog.BySlug(ctx, slug)
}

// Games lists the storefront catalog.
func (s *PurchaseService) Games(ctx context.Context) ([]model.Game, error) {
	return s.catalog.List(ctx)
}

// LibraryEntries lists the account's owned titles.
func (s *PurchaseService) LibraryEntries(ctx context.Context, accountID string) ([]model.LibraryEntry, error) {
	return s.library.List(ctx, accountID)
}

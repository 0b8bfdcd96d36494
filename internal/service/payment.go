package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ludum/internal/card"
	"ludum/internal/model"
	"ludum/internal/notify"
	"ludum/internal/pix"
)

var (
	ErrSessionNotFound    = errors.New("payment session not found")
	ErrSessionState       = errors.New("operation not valid in current session state")
	ErrBadMethod          = errors.New("unknown payment method")
	ErrSettlementInFlight = errors.New("another payment is awaiting settlement for this account")
	ErrPixExpired         = errors.New("pix charge expired")
)

// PurposeKind says what a completed session pays for.
type PurposeKind string

const (
	PurposeTopUp    PurposeKind = "wallet_topup"
	PurposePurchase PurposeKind = "purchase"
)

type Purpose struct {
	Kind      PurposeKind `json:"kind"`
	GameID    uuid.UUID   `json:"game_id,omitempty"`
	GameTitle string      `json:"game_title,omitempty"`
}

// Session is the read-only view handed to callers.
type Session struct {
	ID        uuid.UUID           `json:"id"`
	AccountID string              `json:"account_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Method    model.PaymentMethod `json:"method"`
	State     model.SessionState  `json:"state"`
	Pix       model.PixCharge     `json:"pix"`
	Purpose   Purpose             `json:"purpose"`
	CreatedAt time.Time           `json:"created_at"`
}

type session struct {
	Session
	card      *model.CardDetails
	applied   bool
	resolving bool
}

// PaymentService drives funding attempts through
// method_selection → submitting → awaiting_settlement → completed|failed.
// Settlement resolution is the only path into a terminal state; once a
// session awaits settlement there is no cancellation. On success the
// ledger (for top-ups) or the library (for purchases) is touched exactly
// once per session.
type PaymentService struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	awaiting map[string]uuid.UUID

	wallet   *WalletService
	library  Library
	settler  Settler
	notifier notify.Notifier
	gen      *pix.Generator
	cardMode card.Mode
	timeout  time.Duration
	clock    Clock
}

type PaymentConfig struct {
	CardMode card.Mode
	// Timeout bounds the settlement wait; zero means wait forever, which
	// is the behavior the simulator's fixed delays imply.
	Timeout time.Duration
}

func NewPaymentService(wallet *WalletService, library Library, settler Settler, gen *pix.Generator, notifier notify.Notifier, clock Clock, cfg PaymentConfig) *PaymentService {
	if cfg.CardMode == "" {
		cfg.CardMode = card.Lenient
	}
	return &PaymentService{
		sessions: make(map[uuid.UUID]*session),
		awaiting: make(map[string]uuid.UUID),
		wallet:   wallet,
		library:  library,
		settler:  settler,
		notifier: notifier,
		gen:      gen,
		cardMode: cfg.CardMode,
		timeout:  cfg.Timeout,
		clock:    clock,
	}
}

// CreateTopUp opens a funding session for the requested amount. The pix
// charge is generated here, before any submission, so the payload is
// visible to the user from the start.
func (p *PaymentService) CreateTopUp(ctx context.Context, accountID string, amount decimal.Decimal) (Session, error) {
	return p.create(ctx, accountID, amount, Purpose{Kind: PurposeTopUp})
}

// CreatePurchase opens a session paying for a priced title. On
// completion the game joins the account's library instead of the wallet.
func (p *PaymentService) CreatePurchase(ctx context.Context, accountID string, game model.Game) (Session, error) {
	return p.create(ctx, accountID, game.Price, Purpose{Kind: PurposePurchase, GameID: game.ID, GameTitle: game.Title})
}

func (p *PaymentService) create(ctx context.Context, accountID string, amount decimal.Decimal, purpose Purpose) (Session, error) {
	if err := checkAmount(amount); err != nil {
		return Session{}, err
	}
	charge, err := p.gen.Generate(ctx)
	if err != nil {
		return Session{}, err
	}

	sess := &session{Session: Session{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		Method:    model.MethodPix,
		State:     model.StateMethodSelection,
		Pix:       charge,
		Purpose:   purpose,
		CreatedAt: p.clock.Now(),
	}}

	p.mu.Lock()
	p.sessions[sess.ID] = sess
	p.mu.Unlock()

	return sess.Session, nil
}

func (p *PaymentService) Get(id uuid.UUID) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.Session, nil
}

// SelectMethod switches the active instrument. Only valid before
// submission; any card data entered for the previous choice is dropped.
// The pix charge survives a switch; it was generated for the session,
// not for the selection.
func (p *PaymentService) SelectMethod(id uuid.UUID, method model.PaymentMethod) error {
	if !method.Valid() {
		return ErrBadMethod
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.State != model.StateMethodSelection {
		return ErrSessionState
	}
	sess.Method = method
	sess.card = nil
	return nil
}

// Submit hands the session to the processor. Precondition failures
// (missing card fields, expired pix charge, wrong state) leave the
// session in method_selection and never reach the settler.
func (p *PaymentService) Submit(ctx context.Context, id uuid.UUID, details *model.CardDetails) error {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if !ok {
		p.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.State != model.StateMethodSelection {
		p.mu.Unlock()
		return ErrSessionState
	}
	if inflight, busy := p.awaiting[sess.AccountID]; busy && inflight != id {
		p.mu.Unlock()
		return ErrSettlementInFlight
	}

	now := p.clock.Now()
	switch sess.Method {
	case model.MethodCard:
		if details == nil {
			details = sess.card
		}
		if details == nil {
			p.mu.Unlock()
			return card.ErrMissingField
		}
		if err := card.Validate(*details, p.cardMode, now); err != nil {
			p.mu.Unlock()
			return err
		}
		normalized := *details
		normalized.HolderName = card.NormalizeHolderName(details.HolderName)
		normalized.Number = card.Digits(details.Number)
		sess.card = &normalized
		sess.State = model.StateSubmitting
	case model.MethodPix:
		if now.After(sess.Pix.ExpiresAt) {
			p.mu.Unlock()
			return ErrPixExpired
		}
	default:
		p.mu.Unlock()
		return ErrBadMethod
	}

	sess.State = model.StateAwaitingSettlement
	p.awaiting[sess.AccountID] = sess.ID
	method := sess.Method
	p.mu.Unlock()

	go p.settle(id, method)
	return nil
}

// Discard drops a session before submission or after it reached a
// terminal state. There is no way out of awaiting_settlement.
func (p *PaymentService) Discard(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.State != model.StateMethodSelection && !sess.State.Terminal() {
		return ErrSessionState
	}
	delete(p.sessions, id)
	return nil
}

func (p *PaymentService) settle(id uuid.UUID, method model.PaymentMethod) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ok, err := p.settler.Resolve(ctx, method)
	if err != nil {
		slog.Warn("payment: settlement wait aborted", "session_id", id, "error", err)
		ok = false
	}
	p.ResolveSettlement(context.Background(), id, ok)
}

// ResolveSettlement moves an awaiting session to its terminal state. It
// is idempotent: a session that already left awaiting_settlement, or is
// mid-resolution on another goroutine, is not touched again.
func (p *PaymentService) ResolveSettlement(ctx context.Context, id uuid.UUID, success bool) {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if !ok || sess.State != model.StateAwaitingSettlement || sess.resolving {
		p.mu.Unlock()
		return
	}
	sess.resolving = true

	if !success {
		p.finishLocked(sess, model.StateFailed)
		snap := sess.Session
		p.mu.Unlock()
		p.notifyTerminal(ctx, snap)
		return
	}

	snap := sess.Session
	p.mu.Unlock()

	effectErr := p.applyEffect(ctx, snap)

	p.mu.Lock()
	if effectErr != nil && !errors.Is(effectErr, ErrAlreadyProcessed) {
		slog.Error("payment: settlement effect failed", "session_id", id, "error", effectErr)
		p.finishLocked(sess, model.StateFailed)
	} else {
		sess.applied = true
		p.finishLocked(sess, model.StateCompleted)
	}
	snap = sess.Session
	p.mu.Unlock()

	p.notifyTerminal(ctx, snap)
}

// applyEffect runs the single per-session side effect of a successful
// settlement.
func (p *PaymentService) applyEffect(ctx context.Context, snap Session) error {
	switch snap.Purpose.Kind {
	case PurposePurchase:
		return p.library.AddOwned(ctx, snap.AccountID, snap.Purpose.GameID)
	default:
		_, err := p.wallet.ApplyTopUp(ctx, snap.AccountID, snap.Amount, snap.ID.String())
		return err
	}
}

func (p *PaymentService) finishLocked(sess *session, state model.SessionState) {
	sess.State = state
	if cur, ok := p.awaiting[sess.AccountID]; ok && cur == sess.ID {
		delete(p.awaiting, sess.AccountID)
	}
}

func (p *PaymentService) notifyTerminal(ctx context.Context, snap Session) {
	var msg notify.Message
	switch {
	case snap.State == model.StateFailed && snap.Purpose.Kind == PurposePurchase:
		msg = notify.PurchaseFailed(snap.AccountID, snap.Purpose.GameTitle)
	case snap.State == model.StateFailed:
		msg = notify.PaymentFailed(snap.AccountID, snap.Amount)
	case snap.Purpose.Kind == PurposePurchase:
		msg = notify.PurchaseCompleted(snap.AccountID, snap.Purpose.GameTitle)
	case snap.Method == model.MethodPix:
		msg = notify.PixConfirmed(snap.AccountID, snap.Amount)
	default:
		msg = notify.PaymentApproved(snap.AccountID, snap.Amount)
	}
	p.notifier.Notify(ctx, msg)
}

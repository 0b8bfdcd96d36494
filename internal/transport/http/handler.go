package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"ludum/internal/card"
	"ludum/internal/model"
	"ludum/internal/service"
)

type Handler struct {
	payments  *service.PaymentService
	wallet    *service.WalletService
	purchases *service.PurchaseService
}

func NewHandler(payments *service.PaymentService, wallet *service.WalletService, purchases *service.PurchaseService) *Handler {
	return &Handler{payments: payments, wallet: wallet, purchases: purchases}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /wallet/topups", h.CreateTopUp)
	mux.HandleFunc("GET /wallet/topups/{id}", h.GetTopUp)
	mux.HandleFunc("POST /wallet/topups/{id}/method", h.SelectMethod)
	mux.HandleFunc("POST /wallet/topups/{id}/submit", h.Submit)
	mux.HandleFunc("DELETE /wallet/topups/{id}", h.Discard)

	mux.HandleFunc("GET /wallet", h.Balance)
	mux.HandleFunc("POST /wallet/spend", h.Spend)

	mux.HandleFunc("GET /games", h.Games)
	mux.HandleFunc("GET /games/{slug}", h.Game)
	mux.HandleFunc("POST /purchases", h.Purchase)
	mux.HandleFunc("GET /library", h.Library)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// CreateTopUp is the funding entry point. A non-positive amount is
// rejected inline; no session is created for it.
func (h *Handler) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	var req model.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	sess, err := h.payments.CreateTopUp(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) GetTopUp(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.payments.Get(id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Method model.PaymentMethod `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.payments.SelectMethod(id, req.Method); err != nil {
		h.respondServiceError(w, err)
		return
	}
	sess, err := h.payments.Get(id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req struct {
		Card *model.CardDetails `json:"card,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}
	if err := h.payments.Submit(r.Context(), id, req.Card); err != nil {
		h.respondServiceError(w, err)
		return
	}
	sess, err := h.payments.Get(id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, sess)
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.payments.Discard(id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	bal, err := h.wallet.Balance(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, bal)
}

func (h *Handler) Spend(w http.ResponseWriter, r *http.Request) {
	var req model.SpendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.wallet.Spend(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	games, err := h.purchases.Games(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"games": games})
}

// Game is the game-detail entry point: an unknown slug renders the
// not-found state without touching the core.
func (h *Handler) Game(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	game, err := h.purchases.Game(r.Context(), slug)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, game)
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string    `json:"account_id"`
		GameID    uuid.UUID `json:"game_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.AccountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_account_id")
		return
	}
	res, err := h.purchases.Purchase(r.Context(), req.AccountID, req.GameID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if res.SessionID != nil {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, res)
}

func (h *Handler) Library(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	entries, err := h.purchases.LibraryEntries(r.Context(), accountID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_session_id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionState), errors.Is(err, service.ErrSettlementInFlight),
		errors.Is(err, service.ErrAlreadyProcessed):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAmountNotPositive), errors.Is(err, service.ErrAmountPrecision),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrBadMethod), errors.Is(err, service.ErrPixExpired),
		errors.Is(err, card.ErrMissingField), errors.Is(err, card.ErrBadChecksum),
		errors.Is(err, card.ErrBadExpiry):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

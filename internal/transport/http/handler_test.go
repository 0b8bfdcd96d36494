package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ludum/internal/model"
	"ludum/internal/notify"
	"ludum/internal/pix"
	"ludum/internal/service"
)

type stubCatalog struct {
	games map[uuid.UUID]model.Game
}

func (c *stubCatalog) Lookup(_ context.Context, id uuid.UUID) (model.Game, error) {
	g, ok := c.games[id]
	if !ok {
		return model.Game{}, service.ErrNotFound
	}
	return g, nil
}

func (c *stubCatalog) BySlug(_ context.Context, slug string) (model.Game, error) {
	for _, g := range c.games {
		if g.Slug == slug {
			return g, nil
		}
	}
	return model.Game{}, service.ErrNotFound
}

func (c *stubCatalog) List(_ context.Context) ([]model.Game, error) {
	out := make([]model.Game, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, g)
	}
	return out, nil
}

type stubLibrary struct {
	entries []model.LibraryEntry
}

func (l *stubLibrary) AddOwned(_ context.Context, accountID string, gameID uuid.UUID) error {
	for _, e := range l.entries {
		if e.AccountID == accountID && e.GameID == gameID {
			return nil
		}
	}
	l.entries = append(l.entries, model.LibraryEntry{AccountID: accountID, GameID: gameID, AddedAt: time.Now()})
	return nil
}

func (l *stubLibrary) List(_ context.Context, accountID string) ([]model.LibraryEntry, error) {
	var out []model.LibraryEntry
	for _, e := range l.entries {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

type apiFixture struct {
	srv      *httptest.Server
	freeGame model.Game
	paidGame model.Game
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	free := model.Game{ID: uuid.New(), Slug: "corrida-livre", Title: "Corrida Livre", Price: decimal.Zero}
	paid := model.Game{ID: uuid.New(), Slug: "selva-profunda", Title: "Selva Profunda", Price: decimal.NewFromInt(60)}

	clock := service.SystemClock()
	catalog := &stubCatalog{games: map[uuid.UUID]model.Game{free.ID: free, paid.ID: paid}}
	library := &stubLibrary{}
	wallet := service.NewWalletService(service.NewMemoryStore(), clock, decimal.NewFromInt(100), 24*time.Hour)
	settler := service.NewSimulator(clock, time.Millisecond, time.Millisecond)
	gen := pix.NewGenerator("br.gov.bcb.pix", "Ludum Games", "Sao Paulo", nil)
	payments := service.NewPaymentService(wallet, library, settler, gen, notify.Log{}, clock, service.PaymentConfig{Timeout: 2 * time.Second})
	purchases := service.NewPurchaseService(catalog, library, payments, notify.Log{})

	mux := http.NewServeMux()
	NewHandler(payments, wallet, purchases).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiFixture{srv: srv, freeGame: free, paidGame: paid}
}

func (f *apiFixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type sessionBody struct {
	ID     uuid.UUID `json:"id"`
	State  string    `json:"state"`
	Method string    `json:"method"`
	Pix    struct {
		Reference string `json:"reference"`
		Code      string `json:"copia_e_cola"`
	} `json:"pix"`
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.get(t, "/health")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateTopUp_Validation(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/topups", map[string]any{"account_id": "acc-1", "amount": "0"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.post(t, "/wallet/topups", map[string]any{"amount": "50"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(f.srv.URL+"/wallet/topups", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestTopUpLifecycle_Pix(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/topups", map[string]any{"account_id": "acc-1", "amount": "50"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decodeBody[sessionBody](t, resp)

	assert.Equal(t, "method_selection", sess.State)
	assert.Equal(t, "pix", sess.Method)
	assert.NotEmpty(t, sess.Pix.Code)

	resp = f.post(t, fmt.Sprintf("/wallet/topups/%s/submit", sess.ID), map[string]any{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	submitted := decodeBody[sessionBody](t, resp)
	assert.Equal(t, "awaiting_settlement", submitted.State)

	require.Eventually(t, func() bool {
		resp := f.get(t, fmt.Sprintf("/wallet/topups/%s", sess.ID))
		got := decodeBody[sessionBody](t, resp)
		return got.State == "completed"
	}, 2*time.Second, 10*time.Millisecond)

	resp = f.get(t, "/wallet?account_id=acc-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal := decodeBody[model.WalletBalance](t, resp)
	assert.True(t, bal.Total.Equal(decimal.NewFromInt(50)))
	assert.True(t, bal.Spendable.Equal(decimal.NewFromInt(50)))
}

func TestSelectMethod_Card(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/topups", map[string]any{"account_id": "acc-1", "amount": "50"})
	sess := decodeBody[sessionBody](t, resp)

	resp = f.post(t, fmt.Sprintf("/wallet/topups/%s/method", sess.ID), map[string]any{"method": "card"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[sessionBody](t, resp)
	assert.Equal(t, "card", got.Method)

	resp = f.post(t, fmt.Sprintf("/wallet/topups/%s/method", sess.ID), map[string]any{"method": "boleto"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSubmit_CardMissingFields(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/topups", map[string]any{"account_id": "acc-1", "amount": "50"})
	sess := decodeBody[sessionBody](t, resp)

	resp = f.post(t, fmt.Sprintf("/wallet/topups/%s/method", sess.ID), map[string]any{"method": "card"})
	resp.Body.Close()

	resp = f.post(t, fmt.Sprintf("/wallet/topups/%s/submit", sess.ID), map[string]any{
		"card": map[string]any{"holder_name": "Maria Souza", "number": "4111111111111111"},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Still in method_selection, nothing was submitted.
	resp = f.get(t, fmt.Sprintf("/wallet/topups/%s", sess.ID))
	got := decodeBody[sessionBody](t, resp)
	assert.Equal(t, "method_selection", got.State)
}

func TestGetTopUp_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/wallet/topups/"+uuid.NewString())
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.get(t, "/wallet/topups/not-a-uuid")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiscard(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/topups", map[string]any{"account_id": "acc-1", "amount": "50"})
	sess := decodeBody[sessionBody](t, resp)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+fmt.Sprintf("/wallet/topups/%s", sess.ID), nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp = f.get(t, fmt.Sprintf("/wallet/topups/%s", sess.ID))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpend_Insufficient(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/wallet/spend", map[string]any{"account_id": "acc-1", "amount": "10"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestGame(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/games")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Games []model.Game `json:"games"`
	}](t, resp)
	assert.Len(t, list.Games, 2)

	resp = f.get(t, "/games/selva-profunda")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	game := decodeBody[model.Game](t, resp)
	assert.Equal(t, f.paidGame.ID, game.ID)

	resp = f.get(t, "/games/no-such-game")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPurchase(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.post(t, "/purchases", map[string]any{"account_id": "acc-1", "game_id": f.freeGame.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[service.PurchaseResult](t, resp)
	assert.True(t, res.Owned)

	resp = f.post(t, "/purchases", map[string]any{"account_id": "acc-1", "game_id": f.paidGame.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res = decodeBody[service.PurchaseResult](t, resp)
	assert.False(t, res.Owned)
	require.NotNil(t, res.SessionID)

	resp = f.post(t, "/purchases", map[string]any{"account_id": "acc-1", "game_id": uuid.New()})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.get(t, "/library?account_id=acc-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lib := decodeBody[struct {
		Entries []model.LibraryEntry `json:"entries"`
	}](t, resp)
	assert.Len(t, lib.Entries, 1)
}

package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"ludum/internal/model"
	"ludum/internal/service"
)

// Handler subscribes to NATS command topics and delegates to the wallet
// service. commands.topup is the back-office credit path (support
// refunds, promo grants); commands.spend debits an account.
type Handler struct {
	wallet *service.WalletService
	nc     *nats.Conn
	subs   []*nats.Subscription
}

func NewHandler(wallet *service.WalletService, nc *nats.Conn) *Handler {
	return &Handler{wallet: wallet, nc: nc}
}

// Start subscribes to command topics and blocks until ctx is cancelled
// (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	s1, err := h.nc.QueueSubscribe("commands.topup", "wallet_group", func(m *nats.Msg) {
		var req model.TopUpRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal topup command", "error", err)
			return
		}
		if _, err := h.wallet.ApplyTopUp(ctx, req.AccountID, req.Amount, uuid.NewString()); err != nil {
			slog.Error("nats: topup failed", "error", err, "account_id", req.AccountID)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s1)

	s2, err := h.nc.QueueSubscribe("commands.spend", "wallet_group", func(m *nats.Msg) {
		var req model.SpendRequest
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal spend command", "error", err)
			return
		}
		if _, err := h.wallet.Spend(ctx, req); err != nil {
			slog.Error("nats: spend failed", "error", err, "account_id", req.AccountID)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s2)

	slog.Info("NATS command handler is running")

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

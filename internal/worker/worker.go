package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"ludum/internal/model"
	"ludum/internal/repository"
)

// LedgerSyncer mirrors confirmed ledger events into Postgres.
type LedgerSyncer interface {
	SyncTopUp(ctx context.Context, event model.TopUpEvent) error
	SyncSpend(ctx context.Context, event model.SpendEvent) error
}

// LedgerWorker listens on the settled-event topics and syncs top-ups and
// spends to the Postgres tables.
type LedgerWorker struct {
	syncer   LedgerSyncer
	natsConn *nats.Conn
}

func NewLedgerWorker(syncer LedgerSyncer, nc *nats.Conn) *LedgerWorker {
	return &LedgerWorker{syncer: syncer, natsConn: nc}
}

// Run subscribes to the event topics and blocks until ctx is cancelled.
func (w *LedgerWorker) Run(ctx context.Context) error {
	// QueueSubscribe ensures that with several replicas each event is
	// handled by exactly one worker in the group.
	topUpSub, err := w.natsConn.QueueSubscribe(repository.TopicTopUpCompleted, "ledger_group", func(m *nats.Msg) {
		var event model.TopUpEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal topup event", "error", err)
			return
		}
		if err := w.syncer.SyncTopUp(ctx, event); err != nil {
			slog.Error("worker: failed to sync topup with postgres",
				"account_id", event.AccountID,
				"key", event.Key,
				"error", err,
			)
			return
		}
		slog.Info("worker: topup synced successfully",
			"account_id", event.AccountID,
			"key", event.Key,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	spendSub, err := w.natsConn.QueueSubscribe(repository.TopicSpendCompleted, "ledger_group", func(m *nats.Msg) {
		var event model.SpendEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal spend event", "error", err)
			return
		}
		if err := w.syncer.SyncSpend(ctx, event); err != nil {
			slog.Error("worker: failed to sync spend with postgres",
				"account_id", event.AccountID,
				"key", event.IdempotencyKey,
				"error", err,
			)
			return
		}
		slog.Info("worker: spend synced successfully",
			"account_id", event.AccountID,
			"key", event.IdempotencyKey,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Ledger worker is running")

	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscriptions...")
	if err := topUpSub.Drain(); err != nil {
		return err
	}
	return spendSub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *LedgerWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown
// is via ctx).
func (w *LedgerWorker) Stop(ctx context.Context) error {
	return nil
}

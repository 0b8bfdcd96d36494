package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// TopicSettlementResolved carries processor decisions for sessions that
// are awaiting settlement.
const TopicSettlementResolved = "settlements.resolved"

// SettlementResolver moves an awaiting payment session to its terminal
// state.
type SettlementResolver interface {
	ResolveSettlement(ctx context.Context, id uuid.UUID, success bool)
}

// SettlementResult is the wire form of a processor decision.
type SettlementResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Success   bool      `json:"success"`
}

// SettlementWorker consumes processor decisions and resolves the matching
// sessions. Resolution is idempotent, so redelivered messages are
// harmless.
type SettlementWorker struct {
	resolver SettlementResolver
	natsConn *nats.Conn
}

func NewSettlementWorker(resolver SettlementResolver, nc *nats.Conn) *SettlementWorker {
	return &SettlementWorker{resolver: resolver, natsConn: nc}
}

func (w *SettlementWorker) handle(ctx context.Context, data []byte) error {
	var result SettlementResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("worker: failed to unmarshal settlement result: %w", err)
	}
	if result.SessionID == uuid.Nil {
		return errors.New("worker: settlement result has no session id")
	}
	w.resolver.ResolveSettlement(ctx, result.SessionID, result.Success)
	return nil
}

// Run subscribes to the settlement topic and blocks until ctx is
// cancelled.
func (w *SettlementWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(TopicSettlementResolved, "settlement_group", func(m *nats.Msg) {
		if err := w.handle(ctx, m.Data); err != nil {
			slog.Error("worker: settlement result dropped", "error", err)
			return
		}
		slog.Info("worker: settlement result applied")
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("Settlement worker is running")

	<-ctx.Done()

	slog.Info("Worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *SettlementWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown
// is via ctx).
func (w *SettlementWorker) Stop(ctx context.Context) error {
	return nil
}

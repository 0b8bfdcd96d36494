package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Message is a user-facing status emitted on every terminal payment
// transition and on purchase completion.
type Message struct {
	AccountID string `json:"account_id"`
	Kind      Kind   `json:"kind"`
	Text      string `json:"text"`
}

type Notifier interface {
	Notify(ctx context.Context, m Message)
}

// Message texts are fixed product copy.

func PaymentApproved(accountID string, amount decimal.Decimal) Message {
	return Message{AccountID: accountID, Kind: KindSuccess,
		Text: fmt.Sprintf("Pagamento aprovado! R$ %s foi adicionado à sua carteira.", amount.StringFixed(2))}
}

func PixConfirmed(accountID string, amount decimal.Decimal) Message {
	return Message{AccountID: accountID, Kind: KindSuccess,
		Text: fmt.Sprintf("Pagamento PIX confirmado! R$ %s foi adicionado à sua carteira.", amount.StringFixed(2))}
}

func PaymentFailed(accountID string, amount decimal.Decimal) Message {
	return Message{AccountID: accountID, Kind: KindFailure,
		Text: fmt.Sprintf("Pagamento de R$ %s não foi aprovado.", amount.StringFixed(2))}
}

func AddedToLibrary(accountID, title string) Message {
	return Message{AccountID: accountID, Kind: KindSuccess,
		Text: fmt.Sprintf("%s adicionado à sua biblioteca!", title)}
}

func PurchaseCompleted(accountID, title string) Message {
	return Message{AccountID: accountID, Kind: KindSuccess,
		Text: fmt.Sprintf("Compra de %s realizada com sucesso!", title)}
}

func PurchaseFailed(accountID, title string) Message {
	return Message{AccountID: accountID, Kind: KindFailure,
		Text: fmt.Sprintf("Compra de %s não foi concluída.", title)}
}

// Log writes notifications to the process log. Used when no bus is wired.
type Log struct{}

func (Log) Notify(_ context.Context, m Message) {
	slog.Info("notify: user message", "account_id", m.AccountID, "kind", m.Kind, "text", m.Text)
}

// Publisher is the bus surface a Bus notifier needs. Satisfied by the
// NATS transport bus.
type Publisher interface {
	Publish(topic string, data []byte) error
}

const Topic = "notifications.user"

// Bus publishes notifications as JSON for the presentation layer to fan
// out. Delivery is best effort: a publish failure is logged, never
// propagated into the payment flow.
type Bus struct {
	pub Publisher
}

func NewBus(pub Publisher) *Bus {
	return &Bus{pub: pub}
}

func (b *Bus) Notify(_ context.Context, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		slog.Error("notify: failed to marshal message", "error", err)
		return
	}
	if err := b.pub.Publish(Topic, data); err != nil {
		slog.Error("notify: failed to publish message", "error", err, "account_id", m.AccountID)
	}
}

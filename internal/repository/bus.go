package repository

// MessageBus is the outbound event surface. The wallet repo publishes
// confirmed top-ups and spends on it for the sync worker; nil disables
// publishing.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

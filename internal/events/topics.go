package events

import "slices"

const (
	TopicOrderCreated       = "order.created"
	TopicCheckoutFailed     = "checkout.failed"
	TopicOrderStatusChanged = "order.status_changed"
)

// DefaultTopics returns every topic the storefront publishes.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicCheckoutFailed,
		TopicOrderStatusChanged,
	}
}

// Known reports whether topic is one the storefront publishes.
func Known(topic string) bool {
	return slices.Contains(DefaultTopics(), topic)
}

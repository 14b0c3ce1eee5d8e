package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-bff/internal/obs"
)

// ErrUnknownTopic rejects events outside DefaultTopics.
var ErrUnknownTopic = errors.New("events: unknown topic")

// Event is a domain event as published to downstream consumers.
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events to a sink (Kafka, logs, tests).
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus stamps domain events and fans them out to every publisher.
type Bus struct {
	Publishers []Publisher
	Now        func() time.Time
}

// Emit builds the event and dispatches it. Publisher failures are joined and
// returned alongside the event; callers treat them as non-fatal.
func (b *Bus) Emit(ctx context.Context, topic, key string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if !Known(topic) {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Key:        strings.TrimSpace(key),
		OccurredAt: now().UTC(),
		Payload:    encoded,
	}
	var joined error
	for _, pub := range b.Publishers {
		if pub == nil {
			continue
		}
		if pubErr := pub.Publish(ctx, ev); pubErr != nil {
			obs.Inc(obs.DomainEvents, topic, "error")
			joined = errors.Join(joined, fmt.Errorf("events: publish %s: %w", topic, pubErr))
			continue
		}
		obs.Inc(obs.DomainEvents, topic, "ok")
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validRaw(v)
	case json.RawMessage:
		return validRaw(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validRaw([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validRaw(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}

package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher records events in the structured log when no broker is configured.
type LogPublisher struct {
	Logger zerolog.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(_ context.Context, event Event) error {
	p.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("key", event.Key).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}

package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-bff/internal/events"
)

type capturePublisher struct {
	events []events.Event
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitFansOut(t *testing.T) {
	first := &capturePublisher{}
	second := &capturePublisher{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bus := events.Bus{Publishers: []events.Publisher{first, second}, Now: func() time.Time { return fixed }}

	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "ord-1", map[string]any{"orderId": "123"})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Equal(t, fixed, event.OccurredAt)
	require.JSONEq(t, `{"orderId":"123"}`, string(event.Payload))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, event.ID, second.events[0].ID)
}

func TestEmitJoinsPublisherErrors(t *testing.T) {
	failing := &capturePublisher{err: errors.New("broker down")}
	ok := &capturePublisher{}
	bus := events.Bus{Publishers: []events.Publisher{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicCheckoutFailed, "sess", nil)
	require.ErrorContains(t, err, "broker down")
	require.Len(t, ok.events, 1)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "k", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, "k", "{not json")
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), "order.deleted", "k", nil)
	require.ErrorIs(t, err, events.ErrUnknownTopic)
}

func TestKafkaPublisherSendsEnvelope(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev events.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Topic != events.TopicOrderCreated {
			return errors.New("unexpected topic " + ev.Topic)
		}
		return nil
	})
	t.Cleanup(func() { require.NoError(t, producer.Close()) })

	bus := events.Bus{Publishers: []events.Publisher{events.KafkaPublisher{Producer: producer, Topic: "storefront.events"}}}
	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, "ord-9", map[string]string{"orderId": "ord-9"})
	require.NoError(t, err)
}

func TestKafkaPublisherSurfacesFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	t.Cleanup(func() { _ = producer.Close() })

	pub := events.KafkaPublisher{Producer: producer, Topic: "storefront.events"}
	err := pub.Publish(context.Background(), events.Event{ID: "1", Topic: events.TopicCheckoutFailed, Payload: []byte("{}")})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := events.LogPublisher{Logger: zerolog.New(&buf)}
	require.NoError(t, pub.Publish(context.Background(), events.Event{ID: "e1", Topic: events.TopicOrderCreated, Payload: []byte(`{"a":1}`)}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "domain_event", line["message"])
	require.Equal(t, map[string]any{"a": float64(1)}, line["payload"])
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaPublisher writes events to a single Kafka topic keyed by the event
// key, with the domain topic carried in the event_type header.
type KafkaPublisher struct {
	Producer sarama.SyncProducer
	Topic    string
}

// NewKafkaProducer builds a synchronous producer that waits for all in-sync
// replicas to acknowledge each write.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: kafka brokers not configured")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_1_0_0
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create kafka producer: %w", err)
	}
	return producer, nil
}

// Publish implements Publisher.
func (p KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if p.Producer == nil {
		return errors.New("events: kafka producer not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.Topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Topic)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
	}
	if event.Key != "" {
		msg.Key = sarama.StringEncoder(event.Key)
	}
	if _, _, err := p.Producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send kafka message: %w", err)
	}
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"ardrone-svr/internal/pipeline"
)

// StateEvent es el mensaje publicado por cada frame que cambió algún bit.
type StateEvent struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Datetime  string   `json:"dt"`
	Sequence  uint32   `json:"seq"`
	State     uint32   `json:"state"`
	Changes   []string `json:"changes"`
	Flying    bool     `json:"flying"`
	ComLost   bool     `json:"com_lost"`
}

func ConnectProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2

	return sarama.NewSyncProducer(brokers, config)
}

// Publisher publica eventos de cambio de estado en Kafka.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Close() error { return p.producer.Close() }

// Publish solo emite cuando el frame trajo cambios.
func (p *Publisher) Publish(_ context.Context, s *pipeline.Snapshot) error {
	if len(s.Changes) == 0 {
		return nil
	}
	ev := StateEvent{
		ID:        uuid.NewString(),
		SessionID: s.SessionID,
		Datetime:  s.Datetime,
		Sequence:  s.Sequence,
		State:     s.State,
		Changes:   s.Changes,
		Flying:    s.Flying,
		ComLost:   s.ComLost,
	}
	return p.produce(ev)
}

func (p *Publisher) produce(ev StateEvent) error {
	res, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.SessionID),
		Value: sarama.StringEncoder(res),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

// Package events publishes chat domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathima-sithara/libamarket/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const TypeMessageCreated = "message.created"

type MessageCreated struct {
	EventID        string    `json:"event_id"`
	Type           string    `json:"type"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewMessageCreated(m *domain.Message) MessageCreated {
	return MessageCreated{
		EventID:        uuid.NewString(),
		Type:           TypeMessageCreated,
		MessageID:      m.ID.Hex(),
		ConversationID: m.ConversationID.Hex(),
		SenderID:       m.Sender.Hex(),
		ReceiverID:     m.Receiver.Hex(),
		CreatedAt:      m.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type BreakerConfig struct {
	MaxFailures uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// KafkaPublisher writes through a circuit breaker so an unreachable broker
// fails fast instead of holding up every send.
type KafkaPublisher struct {
	writer       messageWriter
	cb           *gobreaker.CircuitBreaker
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, bc BreakerConfig, log *zap.Logger) *KafkaPublisher {
	return newKafkaPublisher(newWriter(brokers, topic), bc, log)
}

// Writes are synchronous and carry one event each, so the batch timer
// bounds how long a send waits on the flush.
const batchTimeout = 10 * time.Millisecond

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

func newKafkaPublisher(w messageWriter, bc BreakerConfig, log *zap.Logger) *KafkaPublisher {
	st := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bc.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &KafkaPublisher{writer: w, cb: gobreaker.NewCircuitBreaker(st), writeTimeout: 2 * time.Second, log: log}
}

// PublishMessageCreated is keyed by conversation so a conversation's events stay ordered.
func (p *KafkaPublisher) PublishMessageCreated(ctx context.Context, m *domain.Message) error {
	ev := NewMessageCreated(m)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: b,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeMessageCreated)},
		},
	}
	_, err = p.cb.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
		return nil, p.writer.WriteMessages(wctx, msg)
	})
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishMessageCreated(context.Context, *domain.Message) error { return nil }

func (NopPublisher) Close() error { return nil }

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Type names a workflow notification.
type Type string

const (
	RemovalSubmitted Type = "pm_hours_removal.submitted"
	RemovalApproved  Type = "pm_hours_removal.approved"
	RemovalRejected  Type = "pm_hours_removal.rejected"
	RemovalCommented Type = "pm_hours_removal.commented"
)

// Event is the payload published for every PM-hours-removal change.
type Event struct {
	Type            Type            `json:"type"`
	RequestID       string          `json:"requestId"`
	SOWID           string          `json:"sowId"`
	ActorID         string          `json:"actorId"`
	Status          string          `json:"status"`
	HoursToRemove   decimal.Decimal `json:"hoursToRemove"`
	FinancialImpact decimal.Decimal `json:"financialImpact"`
	OccurredAt      time.Time       `json:"occurredAt"`
}

// Publisher delivers events to whoever notifies approvers and requesters.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON events keyed by SOW id so one SOW's events stay
// ordered within a partition.
type KafkaPublisher struct {
	writer Writer
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &skafka.Writer{
		Addr:         skafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &skafka.Hash{},
		RequiredAcks: skafka.RequireOne,
	}}
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := skafka.Message{
		Key:   []byte(e.SOWID),
		Value: b,
		Headers: []skafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher records events in the application log. Used when no broker is
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("workflow event",
		zap.String("type", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.String("sow_id", e.SOWID),
		zap.String("actor_id", e.ActorID),
		zap.String("status", e.Status),
		zap.Stringer("hours_to_remove", e.HoursToRemove),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Package events publishes domain events for the notification service.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	CouponRedeemed      = "coupon.redeemed"
	CashbackRecorded    = "cashback.recorded"
	CashbackConfirmed   = "cashback.confirmed"
	CashbackRejected    = "cashback.rejected"
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalSettled   = "withdrawal.settled"
)

type Event struct {
	Type       string                 `json:"type"`
	UserID     uuid.UUID              `json:"userId"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

func New(typ string, userID uuid.UUID, at time.Time, data map[string]interface{}) Event {
	return Event{Type: typ, UserID: userID, OccurredAt: at.UTC(), Data: data}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	msg, err := toMessage(evt)
	if err != nil {
		return err
	}
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "publish event")
}

// toMessage keys by user so one user's events stay ordered on a partition.
func toMessage(evt Event) (kafka.Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal event")
	}
	return kafka.Message{
		Key:   []byte(evt.UserID.String()),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
		},
	}, nil
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.log.Info("domain event",
		zap.String("type", evt.Type),
		zap.String("user_id", evt.UserID.String()),
		zap.Time("occurred_at", evt.OccurredAt),
		zap.Any("data", evt.Data),
	)
	return nil
}

// Emit publishes evt, logging a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, log *zap.Logger, evt Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, evt); err != nil {
		log.Warn("event publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

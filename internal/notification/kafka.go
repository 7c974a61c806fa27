package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"eventgo/internal/logger"
)

// Topics routes event kinds to Kafka topics: purchase lifecycle events and
// refund events each get their own stream, everything else lands on the
// general notifications topic.
type Topics struct {
	Notifications string
	Purchases     string
	Refunds       string
}

// ForKind returns the topic an event kind is published to. Unset specific
// topics fall back to the notifications topic.
func (t Topics) ForKind(kind EventKind) string {
	switch kind {
	case KindPurchaseConfirmed, KindPurchaseCancelled, KindPaymentFailed:
		if t.Purchases != "" {
			return t.Purchases
		}
	case KindRefundRequested, KindRefundApproved, KindRefundRejected,
		KindRefundCompleted, KindRefundFailed:
		if t.Refunds != "" {
			return t.Refunds
		}
	}
	return t.Notifications
}

// KafkaDispatcher publishes notification messages keyed by recipient, so one
// user's notifications stay ordered within a topic.
type KafkaDispatcher struct {
	writer *kafka.Writer
	topics Topics
	log    *logger.Logger
}

func NewKafkaDispatcher(brokers []string, topics Topics, log *logger.Logger) *KafkaDispatcher {
	// Topic is set per message, so the writer stays topic-less.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaDispatcher{writer: writer, topics: topics, log: log}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	topic := d.topics.ForKind(msg.Kind)
	err = d.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(msg.Recipient),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		if d.log != nil {
			d.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s to %s for %s: %v", msg.Kind, topic, msg.Recipient, err))
		}
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	if d.log != nil {
		d.log.Debug("KAFKA", fmt.Sprintf("Published %s to %s for %s", msg.Kind, topic, msg.Recipient))
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

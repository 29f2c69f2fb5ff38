package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"
	"github.com/IBM/sarama"
)

const (
	TopicOrderCancelled        = "order.cancelled"
	TopicOrderExpired          = "order.expired"
	TopicRefundCompleted       = "refund.completed"
	TopicRefundFailed          = "refund.failed"
	TopicSubscriptionCancelled = "subscription.cancelled"
	TopicPaymentRecovered      = "payment.recovered"
)

// OrderEvent представляет событие заказа для Kafka
type OrderEvent struct {
	OrderID   string             `json:"order_id"`
	FanID     string             `json:"fan_id"`
	CreatorID string             `json:"creator_id"`
	Amount    int64              `json:"amount"`
	Currency  string             `json:"currency"`
	Status    domain.OrderStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// RefundEvent представляет событие возврата для Kafka
type RefundEvent struct {
	RefundID     string              `json:"refund_id"`
	OrderID      string              `json:"order_id"`
	RefundAmount int64               `json:"refund_amount"`
	Currency     string              `json:"currency"`
	Status       domain.RefundStatus `json:"status"`
	Reason       domain.RefundReason `json:"reason"`
	Timestamp    time.Time           `json:"timestamp"`
}

// SubscriptionEvent представляет событие подписки для Kafka
type SubscriptionEvent struct {
	SubscriptionID string                    `json:"subscription_id"`
	FanID          string                    `json:"fan_id"`
	CreatorID      string                    `json:"creator_id"`
	Status         domain.SubscriptionStatus `json:"status"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// RecoveryEvent представляет событие восстановления осиротевшего платежа
type RecoveryEvent struct {
	OrderID         string    `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          int64     `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
}

// NotificationProducer интерфейс для публикации событий жизненного цикла
type NotificationProducer interface {
	PublishOrderCancelled(ctx context.Context, order domain.Order, reason string) error
	PublishOrderExpired(ctx context.Context, order domain.Order) error
	PublishRefundCompleted(ctx context.Context, rec domain.RefundRecord) error
	PublishRefundFailed(ctx context.Context, rec domain.RefundRecord) error
	PublishSubscriptionCancelled(ctx context.Context, sub domain.SubscriptionOrder) error
	PublishPaymentRecovered(ctx context.Context, order domain.Order, paymentIntentID string) error
	Close() error
}

type kafkaNotificationProducer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewKafkaNotificationProducer создает новый продюсер событий жизненного цикла
func NewKafkaNotificationProducer(producer sarama.SyncProducer, log *logger.Logger) NotificationProducer {
	return &kafkaNotificationProducer{
		producer: producer,
		log:      log,
	}
}

// PublishOrderCancelled публикует событие об отмене заказа
func (p *kafkaNotificationProducer) PublishOrderCancelled(ctx context.Context, order domain.Order, reason string) error {
	return p.publish(TopicOrderCancelled, order.ID.String(), OrderEvent{
		OrderID:   order.ID.String(),
		FanID:     order.FanID.String(),
		CreatorID: order.CreatorID.String(),
		Amount:    order.Amount,
		Currency:  order.Currency,
		Status:    order.Status,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

// PublishOrderExpired публикует событие об истечении заказа
func (p *kafkaNotificationProducer) PublishOrderExpired(ctx context.Context, order domain.Order) error {
	return p.publish(TopicOrderExpired, order.ID.String(), OrderEvent{
		OrderID:   order.ID.String(),
		FanID:     order.FanID.String(),
		CreatorID: order.CreatorID.String(),
		Amount:    order.Amount,
		Currency:  order.Currency,
		Status:    order.Status,
		Timestamp: time.Now(),
	})
}

// PublishRefundCompleted публикует событие об успешном возврате
func (p *kafkaNotificationProducer) PublishRefundCompleted(ctx context.Context, rec domain.RefundRecord) error {
	return p.publish(TopicRefundCompleted, rec.OrderID.String(), refundEvent(rec))
}

// PublishRefundFailed публикует событие о неудачном возврате
func (p *kafkaNotificationProducer) PublishRefundFailed(ctx context.Context, rec domain.RefundRecord) error {
	return p.publish(TopicRefundFailed, rec.OrderID.String(), refundEvent(rec))
}

// PublishSubscriptionCancelled публикует событие об отмене подписки
func (p *kafkaNotificationProducer) PublishSubscriptionCancelled(ctx context.Context, sub domain.SubscriptionOrder) error {
	return p.publish(TopicSubscriptionCancelled, sub.ID.String(), SubscriptionEvent{
		SubscriptionID: sub.ID.String(),
		FanID:          sub.FanID.String(),
		CreatorID:      sub.CreatorID.String(),
		Status:         sub.Status,
		Timestamp:      time.Now(),
	})
}

// PublishPaymentRecovered публикует событие о восстановлении осиротевшего платежа
func (p *kafkaNotificationProducer) PublishPaymentRecovered(ctx context.Context, order domain.Order, paymentIntentID string) error {
	return p.publish(TopicPaymentRecovered, order.ID.String(), RecoveryEvent{
		OrderID:         order.ID.String(),
		PaymentIntentID: paymentIntentID,
		Amount:          order.Amount,
		Timestamp:       time.Now(),
	})
}

// publish сериализует событие и отправляет его в топик. Ключ сообщения
// группирует события одной сущности в одну партицию.
func (p *kafkaNotificationProducer) publish(topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal event for topic %s: %v", topic, err)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		p.log.Error("Failed to send message to topic %s: %v", topic, err)
		return fmt.Errorf("kafka: failed to send message: %w", err)
	}

	p.log.Debug("Published message to topic %s, partition %d, offset %d", topic, partition, offset)
	return nil
}

// Close закрывает продюсер Kafka
func (p *kafkaNotificationProducer) Close() error {
	p.log.Info("Closing Kafka producer...")
	if err := p.producer.Close(); err != nil {
		p.log.Error("Failed to close Kafka producer: %v", err)
		return fmt.Errorf("kafka: failed to close producer: %w", err)
	}
	return nil
}

func refundEvent(rec domain.RefundRecord) RefundEvent {
	return RefundEvent{
		RefundID:     rec.ID.String(),
		OrderID:      rec.OrderID.String(),
		RefundAmount: rec.RefundAmount,
		Currency:     rec.Currency,
		Status:       rec.Status,
		Reason:       rec.Reason,
		Timestamp:    time.Now(),
	}
}

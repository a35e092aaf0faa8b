package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// SubscriberHandlers — реакции на подтверждения внешних сервисов.
// Обработчик возвращает ошибку, если событие нужно переиграть; события
// о незнакомых заказах считаются обработанными, чтобы не застревать
// в retry-цикле до DLQ.
type SubscriberHandlers struct {
	// OnPaymentFailed — асинхронный отказ провайдера после успешного
	// capture: заказ уходит в компенсацию.
	OnPaymentFailed func(ctx context.Context, orderID, reason string) error
	// OnDeliveryPickedUp — курьер забрал заказ из ресторана.
	OnDeliveryPickedUp func(ctx context.Context, orderID string) error
	// OnDeliveryCompleted — заказ доставлен клиенту.
	OnDeliveryCompleted func(ctx context.Context, orderID string) error
}

// Subscriber разбирает события payment- и delivery-топиков и зовёт
// обработчики. Используется как MessageHandler для Consumer.
type Subscriber struct {
	handlers SubscriberHandlers
	logger   *log.Entry
}

// NewSubscriber создаёт подписчик на внешние события.
func NewSubscriber(handlers SubscriberHandlers) *Subscriber {
	return &Subscriber{
		handlers: handlers,
		logger:   log.WithField("component", "kafka-subscriber"),
	}
}

// HandleMessage — входная точка consumer'а.
func (s *Subscriber) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseOrderEvent(message)
	if err != nil {
		// Сообщение не распарсится и при повторе: пусть уходит в DLQ.
		return fmt.Errorf("parse event from %s: %w", message.Topic, err)
	}
	if event.OrderID == "" {
		s.logger.WithField("topic", message.Topic).Warn("event without order_id, skipping")
		return nil
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"event_type": event.EventType,
	})

	switch event.EventType {
	case EventTypeExtPaymentFailed:
		if s.handlers.OnPaymentFailed == nil {
			return nil
		}
		reason := event.Metadata["reason"]
		if reason == "" {
			reason = "payment provider rejected the charge"
		}
		return s.handlers.OnPaymentFailed(ctx, event.OrderID, reason)

	case EventTypeExtDeliveryAssigned, EventTypeExtPaymentProcessed:
		// Информационные подтверждения: сага уже зафиксировала результат
		// синхронного вызова, отдельной реакции не нужно.
		logger.Debug("confirmation event acknowledged")
		return nil

	case EventTypeExtDeliveryPickedUp:
		if s.handlers.OnDeliveryPickedUp == nil {
			return nil
		}
		return s.handlers.OnDeliveryPickedUp(ctx, event.OrderID)

	case EventTypeExtDeliveryCompleted:
		if s.handlers.OnDeliveryCompleted == nil {
			return nil
		}
		return s.handlers.OnDeliveryCompleted(ctx, event.OrderID)

	default:
		logger.Debug("unknown event type, skipping")
		return nil
	}
}

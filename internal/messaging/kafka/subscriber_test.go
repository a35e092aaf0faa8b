package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func consumerMessage(t *testing.T, topic string, event *OrderEvent) *sarama.ConsumerMessage {
	t.Helper()
	value, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &sarama.ConsumerMessage{
		Topic: topic,
		Key:   []byte(event.OrderID),
		Value: value,
	}
}

func TestSubscriber_PaymentFailedTriggersHandler(t *testing.T) {
	var gotOrderID, gotReason string
	subscriber := NewSubscriber(SubscriberHandlers{
		OnPaymentFailed: func(_ context.Context, orderID, reason string) error {
			gotOrderID = orderID
			gotReason = reason
			return nil
		},
	})

	msg := consumerMessage(t, TopicPaymentEvents, NewOrderEvent(EventTypeExtPaymentFailed, "order-1", map[string]string{
		"reason": "card declined",
	}))
	if err := subscriber.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gotOrderID != "order-1" {
		t.Fatalf("expected order-1, got %s", gotOrderID)
	}
	if gotReason != "card declined" {
		t.Fatalf("expected reason from metadata, got %q", gotReason)
	}
}

func TestSubscriber_PaymentFailedDefaultReason(t *testing.T) {
	var gotReason string
	subscriber := NewSubscriber(SubscriberHandlers{
		OnPaymentFailed: func(_ context.Context, _, reason string) error {
			gotReason = reason
			return nil
		},
	})

	msg := consumerMessage(t, TopicPaymentEvents, NewOrderEvent(EventTypeExtPaymentFailed, "order-1", nil))
	if err := subscriber.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gotReason == "" {
		t.Fatal("expected fallback reason for event without metadata")
	}
}

func TestSubscriber_DeliveryEventsDispatch(t *testing.T) {
	var pickedUp, completed []string
	subscriber := NewSubscriber(SubscriberHandlers{
		OnDeliveryPickedUp: func(_ context.Context, orderID string) error {
			pickedUp = append(pickedUp, orderID)
			return nil
		},
		OnDeliveryCompleted: func(_ context.Context, orderID string) error {
			completed = append(completed, orderID)
			return nil
		},
	})

	ctx := context.Background()
	if err := subscriber.HandleMessage(ctx, consumerMessage(t, TopicDeliveryEvents, NewOrderEvent(EventTypeExtDeliveryPickedUp, "order-1", nil))); err != nil {
		t.Fatalf("picked up: %v", err)
	}
	if err := subscriber.HandleMessage(ctx, consumerMessage(t, TopicDeliveryEvents, NewOrderEvent(EventTypeExtDeliveryCompleted, "order-2", nil))); err != nil {
		t.Fatalf("completed: %v", err)
	}

	if len(pickedUp) != 1 || pickedUp[0] != "order-1" {
		t.Fatalf("unexpected picked up calls: %v", pickedUp)
	}
	if len(completed) != 1 || completed[0] != "order-2" {
		t.Fatalf("unexpected completed calls: %v", completed)
	}
}

func TestSubscriber_InformationalEventsAcknowledged(t *testing.T) {
	subscriber := NewSubscriber(SubscriberHandlers{
		OnPaymentFailed: func(context.Context, string, string) error {
			t.Fatal("handler must not fire for informational events")
			return nil
		},
	})

	ctx := context.Background()
	for _, eventType := range []EventType{EventTypeExtPaymentProcessed, EventTypeExtDeliveryAssigned} {
		msg := consumerMessage(t, TopicPaymentEvents, NewOrderEvent(eventType, "order-1", nil))
		if err := subscriber.HandleMessage(ctx, msg); err != nil {
			t.Fatalf("%s: %v", eventType, err)
		}
	}
}

func TestSubscriber_HandlerErrorPropagates(t *testing.T) {
	wantErr := errors.New("order lookup failed")
	subscriber := NewSubscriber(SubscriberHandlers{
		OnDeliveryCompleted: func(context.Context, string) error {
			return wantErr
		},
	})

	msg := consumerMessage(t, TopicDeliveryEvents, NewOrderEvent(EventTypeExtDeliveryCompleted, "order-1", nil))
	if err := subscriber.HandleMessage(context.Background(), msg); !errors.Is(err, wantErr) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestSubscriber_MalformedMessageRejected(t *testing.T) {
	subscriber := NewSubscriber(SubscriberHandlers{})

	msg := &sarama.ConsumerMessage{
		Topic:     TopicPaymentEvents,
		Value:     []byte("not-json"),
		Timestamp: time.Now(),
	}
	if err := subscriber.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected parse error for malformed message")
	}
}

func TestSubscriber_EventWithoutOrderIDSkipped(t *testing.T) {
	called := false
	subscriber := NewSubscriber(SubscriberHandlers{
		OnPaymentFailed: func(context.Context, string, string) error {
			called = true
			return nil
		},
	})

	msg := consumerMessage(t, TopicPaymentEvents, NewOrderEvent(EventTypeExtPaymentFailed, "", nil))
	if err := subscriber.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if called {
		t.Fatal("handler must not fire without order_id")
	}
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StepPayload — типизированный снапшот запроса или ответа шага саги.
// Вместо нетипизированного JSON-блоба используется tagged union: дискриминатор
// Step выбирает один из вариантов ниже, остальные указатели обязаны быть nil.
type StepPayload struct {
	Step SagaStep

	Validate   *ValidatePayload
	Payment    *PaymentPayload
	Restaurant *RestaurantPayload
	Delivery   *DeliveryPayload
	Complete   *CompletePayload
}

// ValidatePayload — данные шага validate_order.
type ValidatePayload struct {
	RestaurantID string   `json:"restaurant_id,omitempty"`
	ItemIDs      []string `json:"item_ids,omitempty"`
	Accepted     bool     `json:"accepted,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// PaymentPayload — данные шага process_payment и его компенсации.
type PaymentPayload struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	PaymentID      string          `json:"payment_id,omitempty"`
	Status         string          `json:"status,omitempty"`
	RefundID       string          `json:"refund_id,omitempty"`
	RefundReason   string          `json:"refund_reason,omitempty"`
}

// RestaurantPayload — данные шага notify_restaurant.
type RestaurantPayload struct {
	ItemCount           int             `json:"item_count,omitempty"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	EstimatedPrepMinute int32           `json:"estimated_prep_minutes,omitempty"`
	CancelNotified      bool            `json:"cancel_notified,omitempty"`
}

// DeliveryPayload — данные шага assign_delivery.
type DeliveryPayload struct {
	DeliveryID     string          `json:"delivery_id,omitempty"`
	Address        DeliveryAddress `json:"address,omitempty"`
	CancelNotified bool            `json:"cancel_notified,omitempty"`
}

// CompletePayload — данные шага complete_order.
type CompletePayload struct {
	CompletedAt time.Time `json:"completed_at"`
}

// NewValidatePayload упаковывает вариант validate_order.
func NewValidatePayload(p ValidatePayload) StepPayload {
	return StepPayload{Step: SagaStepValidateOrder, Validate: &p}
}

// NewPaymentPayload упаковывает вариант process_payment.
func NewPaymentPayload(p PaymentPayload) StepPayload {
	return StepPayload{Step: SagaStepProcessPayment, Payment: &p}
}

// NewRestaurantPayload упаковывает вариант notify_restaurant.
func NewRestaurantPayload(p RestaurantPayload) StepPayload {
	return StepPayload{Step: SagaStepNotifyRestaurant, Restaurant: &p}
}

// NewDeliveryPayload упаковывает вариант assign_delivery.
func NewDeliveryPayload(p DeliveryPayload) StepPayload {
	return StepPayload{Step: SagaStepAssignDelivery, Delivery: &p}
}

// NewCompletePayload упаковывает вариант complete_order.
func NewCompletePayload(p CompletePayload) StepPayload {
	return StepPayload{Step: SagaStepCompleteOrder, Complete: &p}
}

// IsZero сообщает, что снапшот не заполнен (например, у шага нет запроса).
func (p StepPayload) IsZero() bool {
	return p.Step == "" && p.Validate == nil && p.Payment == nil &&
		p.Restaurant == nil && p.Delivery == nil && p.Complete == nil
}

// payloadEnvelope — сериализованная форма: дискриминатор + данные варианта.
type payloadEnvelope struct {
	Step SagaStep        `json:"step"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON сериализует активный вариант вместе с дискриминатором.
func (p StepPayload) MarshalJSON() ([]byte, error) {
	env := payloadEnvelope{Step: p.Step}

	var variant any
	switch p.Step {
	case SagaStepValidateOrder:
		variant = p.Validate
	case SagaStepProcessPayment:
		variant = p.Payment
	case SagaStepNotifyRestaurant:
		variant = p.Restaurant
	case SagaStepAssignDelivery:
		variant = p.Delivery
	case SagaStepCompleteOrder:
		variant = p.Complete
	case "":
		return json.Marshal(env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSagaStep, p.Step)
	}

	if variant != nil {
		data, err := json.Marshal(variant)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", p.Step, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// UnmarshalJSON восстанавливает вариант по дискриминатору.
func (p *StepPayload) UnmarshalJSON(data []byte) error {
	var env payloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal payload envelope: %w", err)
	}

	*p = StepPayload{Step: env.Step}
	if len(env.Data) == 0 {
		return nil
	}

	switch env.Step {
	case SagaStepValidateOrder:
		p.Validate = &ValidatePayload{}
		return json.Unmarshal(env.Data, p.Validate)
	case SagaStepProcessPayment:
		p.Payment = &PaymentPayload{}
		return json.Unmarshal(env.Data, p.Payment)
	case SagaStepNotifyRestaurant:
		p.Restaurant = &RestaurantPayload{}
		return json.Unmarshal(env.Data, p.Restaurant)
	case SagaStepAssignDelivery:
		p.Delivery = &DeliveryPayload{}
		return json.Unmarshal(env.Data, p.Delivery)
	case SagaStepCompleteOrder:
		p.Complete = &CompletePayload{}
		return json.Unmarshal(env.Data, p.Complete)
	case "":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSagaStep, env.Step)
	}
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus статус обработки вебхук-события
type WebhookEventStatus string

const (
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusSkipped   WebhookEventStatus = "skipped"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent представляет обработанное входящее событие платежного шлюза.
// ExternalEventID глобально уникален: повторная доставка того же события
// не производит побочных эффектов.
type WebhookEvent struct {
	ID              uuid.UUID          `json:"id"`
	ExternalEventID string             `json:"external_event_id"`
	Type            string             `json:"event_type"`
	Status          WebhookEventStatus `json:"status"`
	Payload         []byte             `json:"payload,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	ProcessedAt     time.Time          `json:"processed_at"`
}

// InboundEvent входящее событие шлюза после проверки подписи,
// до применения к внутреннему состоянию.
type InboundEvent struct {
	ExternalID string
	Type       string
	Created    time.Time
	Data       json.RawMessage
	Payload    []byte
}

// ReconcileOutcome результат обработки события вебхука
type ReconcileOutcome string

const (
	ReconcileOK        ReconcileOutcome = "ok"
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	ReconcileSkipped   ReconcileOutcome = "skipped"
	ReconcileFailed    ReconcileOutcome = "failed"
)

// OrphanCandidate платеж на стороне шлюза без соответствующего внутреннего заказа
type OrphanCandidate struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	CustomerEmail   string    `json:"customer_email,omitempty"`
	CreatorID       string    `json:"creator_id,omitempty"`
	GatewayCreated  time.Time `json:"gateway_created"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus статус заказа персонального видео
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusAccepted   OrderStatus = "accepted"
	OrderStatusRecording  OrderStatus = "recording"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusExpired    OrderStatus = "expired"
)

// Order представляет собой разовый заказ видео у криэйтора.
// Все денежные поля хранятся в минимальных единицах валюты (центах).
// Инвариант: PlatformFee + CreatorEarnings == Amount.
type Order struct {
	ID                     uuid.UUID         `json:"id"`
	FanID                  uuid.UUID         `json:"fan_id"`
	FanEmail               string            `json:"fan_email,omitempty"`
	CreatorID              uuid.UUID         `json:"creator_id"`
	Amount                 int64             `json:"amount"`
	PlatformFee            int64             `json:"platform_fee"`
	CreatorEarnings        int64             `json:"creator_earnings"`
	Currency               string            `json:"currency"`
	Status                 OrderStatus       `json:"status"`
	PaymentIntentReference string            `json:"payment_intent_reference,omitempty"`
	VideoRequestID         string            `json:"video_request_id,omitempty"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	AcceptedAt             *time.Time        `json:"accepted_at,omitempty"`
	RecordingAt            *time.Time        `json:"recording_at,omitempty"`
	CompletedAt            *time.Time        `json:"completed_at,omitempty"`
	CancelledAt            *time.Time        `json:"cancelled_at,omitempty"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// OrderRequest представляет запрос на создание заказа
type OrderRequest struct {
	CreatorID      string            `json:"creator_id" binding:"required,uuid4"`
	Amount         int64             `json:"amount" binding:"required,gt=0"`
	Currency       string            `json:"currency" binding:"required,len=3"`
	VideoRequestID string            `json:"video_request_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CancelOrderRequest представляет запрос на отмену заказа
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

// Creator представляет внешний профиль криэйтора.
// Сервис пользуется только платежными атрибутами, остальное — вне ядра.
type Creator struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	GatewayAccountID  string    `json:"gateway_account_id"`
	PaymentsEnabled   bool      `json:"payments_enabled"`
	DisplayName       string    `json:"display_name,omitempty"`
	SubscriptionTiers []string  `json:"subscription_tiers,omitempty"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// BillingPeriod период списания подписки
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// SubscriptionAction действие пользователя над подпиской
type SubscriptionAction string

const (
	SubscriptionActionPause      SubscriptionAction = "pause"
	SubscriptionActionResume     SubscriptionAction = "resume"
	SubscriptionActionCancel     SubscriptionAction = "cancel"
	SubscriptionActionReactivate SubscriptionAction = "reactivate"
)

// SubscriptionOrder представляет собой регулярную подписку фаната на криэйтора.
// Денежные поля в минимальных единицах валюты.
// Инвариант: у пары (fan_id, creator_id) не более одной подписки
// в статусе active/trialing/paused одновременно.
type SubscriptionOrder struct {
	ID                      uuid.UUID          `json:"id"`
	FanID                   uuid.UUID          `json:"fan_id"`
	CreatorID               uuid.UUID          `json:"creator_id"`
	TierID                  string             `json:"tier_id"`
	TotalAmount             int64              `json:"total_amount"`
	PlatformFee             int64              `json:"platform_fee"`
	CreatorEarnings         int64              `json:"creator_earnings"`
	Currency                string             `json:"currency"`
	BillingPeriod           BillingPeriod      `json:"billing_period"`
	Status                  SubscriptionStatus `json:"status"`
	ExternalSubscriptionRef string             `json:"external_subscription_reference,omitempty"`
	CancelAtPeriodEnd       bool               `json:"cancel_at_period_end"`
	CurrentPeriodStart      time.Time          `json:"current_period_start"`
	CurrentPeriodEnd        time.Time          `json:"current_period_end"`
	NextBillingDate         *time.Time         `json:"next_billing_date,omitempty"`
	CancelledAt             *time.Time         `json:"cancelled_at,omitempty"`
	PausedAt                *time.Time         `json:"paused_at,omitempty"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// SubscriptionActionRequest представляет PATCH-запрос на действие с подпиской
type SubscriptionActionRequest struct {
	OrderID string             `json:"orderId" binding:"required,uuid4"`
	Action  SubscriptionAction `json:"action" binding:"required,oneof=pause resume cancel reactivate"`
}

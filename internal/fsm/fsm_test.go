package fsm

import (
	"testing"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCanTransitionOrder(t *testing.T) {
	// Основной поток
	assert.True(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusAccepted))
	assert.True(t, CanTransitionOrder(domain.OrderStatusAccepted, domain.OrderStatusRecording))
	assert.True(t, CanTransitionOrder(domain.OrderStatusRecording, domain.OrderStatusProcessing))
	assert.True(t, CanTransitionOrder(domain.OrderStatusProcessing, domain.OrderStatusCompleted))

	// Отмена и возврат
	assert.True(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusCancelled))
	assert.True(t, CanTransitionOrder(domain.OrderStatusAccepted, domain.OrderStatusCancelled))
	assert.True(t, CanTransitionOrder(domain.OrderStatusRecording, domain.OrderStatusCancelled))
	assert.True(t, CanTransitionOrder(domain.OrderStatusCancelled, domain.OrderStatusRefunded))
	assert.True(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusRefunded))

	// Истечение возможно из любого неконечного статуса
	assert.True(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusExpired))
	assert.True(t, CanTransitionOrder(domain.OrderStatusProcessing, domain.OrderStatusExpired))

	// Пропуск стадий запрещен
	assert.False(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusRecording))
	assert.False(t, CanTransitionOrder(domain.OrderStatusPending, domain.OrderStatusCompleted))
	assert.False(t, CanTransitionOrder(domain.OrderStatusAccepted, domain.OrderStatusProcessing))

	// Конечные статусы не покидаются
	assert.False(t, CanTransitionOrder(domain.OrderStatusCompleted, domain.OrderStatusCancelled))
	assert.False(t, CanTransitionOrder(domain.OrderStatusRefunded, domain.OrderStatusPending))
	assert.False(t, CanTransitionOrder(domain.OrderStatusExpired, domain.OrderStatusRefunded))
	assert.False(t, CanTransitionOrder(domain.OrderStatusProcessing, domain.OrderStatusCancelled))
}

func TestIsTerminalOrderStatus(t *testing.T) {
	assert.True(t, IsTerminalOrderStatus(domain.OrderStatusCompleted))
	assert.True(t, IsTerminalOrderStatus(domain.OrderStatusRefunded))
	assert.True(t, IsTerminalOrderStatus(domain.OrderStatusExpired))
	assert.False(t, IsTerminalOrderStatus(domain.OrderStatusPending))
	assert.False(t, IsTerminalOrderStatus(domain.OrderStatusCancelled))
}

func TestSubscriptionStatusFromGateway(t *testing.T) {
	tests := []struct {
		gateway string
		want    domain.SubscriptionStatus
	}{
		{"active", domain.SubscriptionStatusActive},
		{"trialing", domain.SubscriptionStatusTrialing},
		{"past_due", domain.SubscriptionStatusPending},
		{"unpaid", domain.SubscriptionStatusPending},
		{"canceled", domain.SubscriptionStatusCancelled},
		{"incomplete", domain.SubscriptionStatusExpired},
		{"incomplete_expired", domain.SubscriptionStatusExpired},
		{"paused", domain.SubscriptionStatusPaused},
	}
	for _, tt := range tests {
		got, ok := SubscriptionStatusFromGateway(tt.gateway)
		assert.True(t, ok, tt.gateway)
		assert.Equal(t, tt.want, got, tt.gateway)
	}

	_, ok := SubscriptionStatusFromGateway("some_future_status")
	assert.False(t, ok)
}

func TestCanTransitionSubscription(t *testing.T) {
	assert.True(t, CanTransitionSubscription(domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused))
	assert.True(t, CanTransitionSubscription(domain.SubscriptionStatusPaused, domain.SubscriptionStatusActive))
	assert.True(t, CanTransitionSubscription(domain.SubscriptionStatusTrialing, domain.SubscriptionStatusActive))
	assert.True(t, CanTransitionSubscription(domain.SubscriptionStatusCancelled, domain.SubscriptionStatusActive))

	// Повторная доставка того же статуса — no-op, но допустима
	assert.True(t, CanTransitionSubscription(domain.SubscriptionStatusActive, domain.SubscriptionStatusActive))

	assert.False(t, CanTransitionSubscription(domain.SubscriptionStatusExpired, domain.SubscriptionStatusActive))
	assert.False(t, CanTransitionSubscription(domain.SubscriptionStatusPaused, domain.SubscriptionStatusTrialing))
}

func TestActionAllowed(t *testing.T) {
	assert.True(t, ActionAllowed(domain.SubscriptionActionPause, domain.SubscriptionStatusActive))
	assert.False(t, ActionAllowed(domain.SubscriptionActionPause, domain.SubscriptionStatusPaused))

	assert.True(t, ActionAllowed(domain.SubscriptionActionResume, domain.SubscriptionStatusPaused))
	assert.False(t, ActionAllowed(domain.SubscriptionActionResume, domain.SubscriptionStatusActive))

	assert.True(t, ActionAllowed(domain.SubscriptionActionCancel, domain.SubscriptionStatusActive))
	assert.True(t, ActionAllowed(domain.SubscriptionActionCancel, domain.SubscriptionStatusPaused))
	assert.False(t, ActionAllowed(domain.SubscriptionActionCancel, domain.SubscriptionStatusExpired))

	assert.True(t, ActionAllowed(domain.SubscriptionActionReactivate, domain.SubscriptionStatusCancelled))
	assert.False(t, ActionAllowed(domain.SubscriptionActionReactivate, domain.SubscriptionStatusActive))
}

package fsm

import "github.com/clipfan/reconciliation-service/internal/domain"

// gatewayStatusMap отображение статуса подписки на стороне шлюза
// во внутренний статус.
var gatewayStatusMap = map[string]domain.SubscriptionStatus{
	"active":             domain.SubscriptionStatusActive,
	"trialing":           domain.SubscriptionStatusTrialing,
	"past_due":           domain.SubscriptionStatusPending,
	"unpaid":             domain.SubscriptionStatusPending,
	"canceled":           domain.SubscriptionStatusCancelled,
	"incomplete":         domain.SubscriptionStatusExpired,
	"incomplete_expired": domain.SubscriptionStatusExpired,
	"paused":             domain.SubscriptionStatusPaused,
}

// SubscriptionStatusFromGateway переводит статус шлюза во внутренний.
// Второе значение false означает неизвестный статус шлюза.
func SubscriptionStatusFromGateway(gatewayStatus string) (domain.SubscriptionStatus, bool) {
	status, ok := gatewayStatusMap[gatewayStatus]
	return status, ok
}

// subscriptionTransitions множество допустимых ребер для подписки.
// Ребро cancelled -> active существует только для реактивации до конца
// оплаченного периода.
var subscriptionTransitions = map[domain.SubscriptionStatus]map[domain.SubscriptionStatus]struct{}{
	domain.SubscriptionStatusActive: {
		domain.SubscriptionStatusPaused:    {},
		domain.SubscriptionStatusPending:   {},
		domain.SubscriptionStatusCancelled: {},
		domain.SubscriptionStatusExpired:   {},
	},
	domain.SubscriptionStatusTrialing: {
		domain.SubscriptionStatusActive:    {},
		domain.SubscriptionStatusPending:   {},
		domain.SubscriptionStatusCancelled: {},
		domain.SubscriptionStatusExpired:   {},
	},
	domain.SubscriptionStatusPaused: {
		domain.SubscriptionStatusActive:    {},
		domain.SubscriptionStatusCancelled: {},
	},
	domain.SubscriptionStatusPending: {
		domain.SubscriptionStatusActive:    {},
		domain.SubscriptionStatusTrialing:  {},
		domain.SubscriptionStatusCancelled: {},
		domain.SubscriptionStatusExpired:   {},
	},
	domain.SubscriptionStatusCancelled: {
		domain.SubscriptionStatusActive: {},
	},
	domain.SubscriptionStatusExpired: {},
}

// CanTransitionSubscription сообщает, допустим ли переход подписки from -> to.
func CanTransitionSubscription(from, to domain.SubscriptionStatus) bool {
	if from == to {
		// Повторное применение того же статуса допустимо: вебхуки
		// доставляются минимум один раз.
		return true
	}
	targets, ok := subscriptionTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// actionPreconditions требуемый текущий статус для действий пользователя.
var actionPreconditions = map[domain.SubscriptionAction][]domain.SubscriptionStatus{
	domain.SubscriptionActionPause:      {domain.SubscriptionStatusActive},
	domain.SubscriptionActionResume:     {domain.SubscriptionStatusPaused},
	domain.SubscriptionActionCancel:     {domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused},
	domain.SubscriptionActionReactivate: {domain.SubscriptionStatusCancelled},
}

// ActionAllowed проверяет предусловие действия пользователя над подпиской.
func ActionAllowed(action domain.SubscriptionAction, current domain.SubscriptionStatus) bool {
	allowed, ok := actionPreconditions[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == current {
			return true
		}
	}
	return false
}

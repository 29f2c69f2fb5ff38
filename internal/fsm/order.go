// Package fsm содержит таблицы допустимых переходов статусов заказов
// и подписок. Вся мутация статусов в сервисе проходит через эти таблицы:
// ни один другой код не пишет status напрямую.
package fsm

import "github.com/clipfan/reconciliation-service/internal/domain"

// orderTransitions множество допустимых ребер для заказа.
// Линейный поток pending -> accepted -> recording -> processing -> completed,
// плюс явные ребра отмены, возврата и истечения.
var orderTransitions = map[domain.OrderStatus]map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusAccepted:  {},
		domain.OrderStatusCancelled: {},
		domain.OrderStatusRefunded:  {},
		domain.OrderStatusExpired:   {},
	},
	domain.OrderStatusAccepted: {
		domain.OrderStatusRecording: {},
		domain.OrderStatusCancelled: {},
		domain.OrderStatusRefunded:  {},
		domain.OrderStatusExpired:   {},
	},
	domain.OrderStatusRecording: {
		domain.OrderStatusProcessing: {},
		domain.OrderStatusCancelled:  {},
		domain.OrderStatusRefunded:   {},
		domain.OrderStatusExpired:    {},
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusCompleted: {},
		domain.OrderStatusExpired:   {},
	},
	// Возврат может завершиться после того, как заказ уже отменен
	domain.OrderStatusCancelled: {
		domain.OrderStatusRefunded: {},
	},
	domain.OrderStatusCompleted: {},
	domain.OrderStatusRefunded:  {},
	domain.OrderStatusExpired:   {},
}

// CanTransitionOrder сообщает, допустим ли переход заказа from -> to.
func CanTransitionOrder(from, to domain.OrderStatus) bool {
	targets, ok := orderTransitions[from]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// IsTerminalOrderStatus сообщает, является ли статус заказа конечным.
func IsTerminalOrderStatus(status domain.OrderStatus) bool {
	targets, ok := orderTransitions[status]
	return ok && len(targets) == 0
}

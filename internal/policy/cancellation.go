// Package policy реализует политику отмены заказов: по текущему статусу
// и прошедшему времени решает, допустима ли отмена и с каким сбором.
package policy

import (
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/money"
)

// Ставки политики. Возврат на стадии записи фиксирован и не настраивается.
const (
	acceptedCancellationFeePercent int64 = 10
	recordingRefundPercent         int64 = 50
)

// Config окна политики отмены
type Config struct {
	// PendingWindow окно бесплатной отмены неподтвержденного заказа
	PendingWindow time.Duration
	// AcceptedWindow окно отмены принятого заказа со сбором
	AcceptedWindow time.Duration
	// RecordingGrace льготное окно после начала записи
	RecordingGrace time.Duration
}

// DefaultConfig возвращает окна политики по умолчанию
func DefaultConfig() Config {
	return Config{
		PendingWindow:  24 * time.Hour,
		AcceptedWindow: 2 * time.Hour,
		RecordingGrace: 30 * time.Minute,
	}
}

// Decision результат оценки политики отмены
type Decision struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason,omitempty"`
	CancellationFee int64  `json:"cancellation_fee"`
	RefundAmount    int64  `json:"refund_amount"`
}

// Engine применяет политику отмены к заказам
type Engine struct {
	cfg Config
}

// NewEngine создает движок политики отмены
func NewEngine(cfg Config) *Engine {
	if cfg.PendingWindow == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Evaluate решает, может ли заказ быть отменен в момент now, и возвращает
// сбор за отмену и возвращаемую сумму. Побочных эффектов нет.
func (e *Engine) Evaluate(order domain.Order, now time.Time) Decision {
	switch order.Status {
	case domain.OrderStatusPending:
		if now.Sub(order.CreatedAt) <= e.cfg.PendingWindow {
			return Decision{Eligible: true, RefundAmount: order.Amount}
		}
		return Decision{Reason: "pending cancellation window has passed"}

	case domain.OrderStatusAccepted:
		if now.Sub(order.CreatedAt) <= e.cfg.AcceptedWindow {
			fee := money.Percentage(order.Amount, acceptedCancellationFeePercent)
			return Decision{
				Eligible:        true,
				CancellationFee: fee,
				RefundAmount:    order.Amount - fee,
			}
		}
		return Decision{Reason: "accepted cancellation window has passed"}

	case domain.OrderStatusRecording:
		started := order.CreatedAt
		if order.RecordingAt != nil {
			started = *order.RecordingAt
		}
		if now.Sub(started) <= e.cfg.RecordingGrace {
			refund := money.Percentage(order.Amount, recordingRefundPercent)
			return Decision{
				Eligible:        true,
				CancellationFee: order.Amount - refund,
				RefundAmount:    refund,
			}
		}
		return Decision{Reason: "recording grace period has passed"}

	default:
		return Decision{Reason: "order status does not allow cancellation"}
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus статус возврата
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

// RefundReason причина возврата
type RefundReason string

const (
	RefundReasonCreatorRejection  RefundReason = "creator_rejection"
	RefundReasonFanCancellation   RefundReason = "fan_cancellation"
	RefundReasonSystemExpiry      RefundReason = "system_expiry"
	RefundReasonAdminRefund       RefundReason = "admin_refund"
	RefundReasonDisputeChargeback RefundReason = "dispute_chargeback"
	RefundReasonTechnicalIssue    RefundReason = "technical_issue"
	RefundReasonDuplicatePayment  RefundReason = "duplicate_payment"
	RefundReasonOther             RefundReason = "other"
)

// InitiatorType тип инициатора возврата
type InitiatorType string

const (
	InitiatorFan     InitiatorType = "fan"
	InitiatorCreator InitiatorType = "creator"
	InitiatorAdmin   InitiatorType = "admin"
	InitiatorSystem  InitiatorType = "system"
)

// RefundRecord представляет неизменяемую запись о попытке возврата.
// ExternalRefundRef уникален и служит ключом дедупликации (см. идемпотентность
// на пути возвратов). После создания мутирует только Status и его таймстемпы.
// Инварианты: RefundAmount > 0, RefundAmount <= OriginalAmount, все поля
// комиссий неотрицательны.
type RefundRecord struct {
	ID                    uuid.UUID     `json:"id"`
	OrderID               uuid.UUID     `json:"order_id"`
	ExternalRefundRef     string        `json:"external_refund_reference,omitempty"`
	RefundAmount          int64         `json:"refund_amount"`
	OriginalAmount        int64         `json:"original_amount"`
	PlatformFeeRefund     int64         `json:"platform_fee_refund"`
	CreatorEarningsRefund int64         `json:"creator_earnings_refund"`
	CancellationFee       int64         `json:"cancellation_fee"`
	Currency              string        `json:"currency"`
	Status                RefundStatus  `json:"status"`
	Reason                RefundReason  `json:"reason"`
	InitiatedByType       InitiatorType `json:"initiated_by_type"`
	InitiatedBy           *uuid.UUID    `json:"initiated_by,omitempty"`
	FailureReason         string        `json:"failure_reason,omitempty"`
	InitiatedAt           time.Time     `json:"initiated_at"`
	ProcessedAt           *time.Time    `json:"processed_at,omitempty"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
	FailedAt              *time.Time    `json:"failed_at,omitempty"`
}

// RefundBatchType тип селектора пакетного возврата
type RefundBatchType string

const (
	RefundBatchExpiredOrders  RefundBatchType = "expired_orders"
	RefundBatchSpecificOrders RefundBatchType = "specific_orders"
)

// RefundBatchRequest представляет запрос на пакетную обработку возвратов
type RefundBatchRequest struct {
	Type     RefundBatchType `json:"type" binding:"required,oneof=expired_orders specific_orders"`
	OrderIDs []string        `json:"orderIds,omitempty" binding:"omitempty,dive,uuid4"`
	Reason   RefundReason    `json:"reason" binding:"required"`
	DryRun   bool            `json:"dryRun"`
}

// RefundBatchItem результат обработки одного заказа в пакете
type RefundBatchItem struct {
	OrderID  uuid.UUID `json:"order_id"`
	Amount   int64     `json:"amount"`
	Success  bool      `json:"success"`
	RefundID uuid.UUID `json:"refund_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RefundBatchResult итог пакетной обработки возвратов
type RefundBatchResult struct {
	DryRun       bool              `json:"dry_run"`
	Items        []RefundBatchItem `json:"items"`
	TotalAmount  int64             `json:"total_amount"`
	SuccessCount int               `json:"success_count"`
	FailureCount int               `json:"failure_count"`
}

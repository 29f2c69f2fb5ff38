package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// RefundParams параметры создания возврата в шлюзе
type RefundParams struct {
	PaymentIntentID string
	// Amount сумма возврата в минимальных единицах. 0 означает полный возврат.
	Amount         int64
	Reason         string
	RefundRecordID string
	// IdempotencyKey передается шлюзу с каждой попыткой: повтор после
	// неоднозначного таймаута не создает второй возврат
	IdempotencyKey string
}

// RefundResult результат создания возврата в шлюзе
type RefundResult struct {
	ID      string
	Amount  int64
	Status  string
	Created time.Time
}

// CreateRefund создает возврат платежа в шлюзе. Вместе с суммой возвращается
// пропорциональная часть комиссии платформы, перевод криэйтору реверсируется.
func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (*RefundResult, error) {
	c.log.Debug("Creating refund for payment intent %s, amount %d", params.PaymentIntentID, params.Amount)

	refundParams := &stripe.RefundParams{
		Params:               stripe.Params{Context: ctx},
		PaymentIntent:        stripe.String(params.PaymentIntentID),
		RefundApplicationFee: stripe.Bool(true),
		ReverseTransfer:      stripe.Bool(true),
	}
	if params.IdempotencyKey != "" {
		refundParams.IdempotencyKey = stripe.String(params.IdempotencyKey)
	}
	if params.Amount > 0 {
		refundParams.Amount = stripe.Int64(params.Amount)
	}
	if reason := mapRefundReason(params.Reason); reason != "" {
		refundParams.Reason = stripe.String(reason)
	}
	if params.RefundRecordID != "" {
		refundParams.AddMetadata(metadataRefundIDKey, params.RefundRecordID)
	}

	refund, err := c.client.Refunds.New(refundParams)
	if err != nil {
		return nil, c.wrapErr("create_refund", err)
	}

	c.log.Info("Created refund %s for payment intent %s, amount %d, status %s",
		refund.ID, params.PaymentIntentID, refund.Amount, refund.Status)
	return &RefundResult{
		ID:      refund.ID,
		Amount:  refund.Amount,
		Status:  string(refund.Status),
		Created: time.Unix(refund.Created, 0),
	}, nil
}

// mapRefundReason переводит внутреннюю причину возврата в словарь шлюза.
// Stripe принимает только три значения, остальное остается пустым.
func mapRefundReason(reason string) string {
	switch reason {
	case "fan_cancellation", "creator_rejection", "system_expiry":
		return string(stripe.RefundReasonRequestedByCustomer)
	case "duplicate_payment":
		return string(stripe.RefundReasonDuplicate)
	case "dispute_chargeback":
		return string(stripe.RefundReasonFraudulent)
	default:
		return ""
	}
}

package stripe

import (
	"context"
	"errors"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключи метаданных, связывающие объекты Stripe с внутренними сущностями
	metadataOrderIDKey   = "order_id"
	metadataCreatorIDKey = "creator_id"
	metadataFanIDKey     = "fan_id"
	metadataRefundIDKey  = "refund_record_id"
)

// PaymentGateway определяет платежные операции шлюза
type PaymentGateway interface {
	// CreateDestinationCharge создает платеж с маршрутизацией доли криэйтора
	// на его подключенный аккаунт. Комиссия платформы удерживается через
	// application_fee_amount.
	CreateDestinationCharge(ctx context.Context, order domain.Order, creator domain.Creator, idempotencyKey string) (*PaymentIntent, error)

	// GetPaymentIntent возвращает платеж по его ID в шлюзе
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)

	// ListRecentPayments возвращает платежи шлюза, созданные после since
	ListRecentPayments(ctx context.Context, since time.Time, limit int) ([]PaymentIntent, error)
}

// RefundGateway определяет операции возврата средств
type RefundGateway interface {
	// CreateRefund создает возврат в шлюзе. При amount == 0 возвращается
	// вся сумма платежа.
	CreateRefund(ctx context.Context, params RefundParams) (*RefundResult, error)
}

// SubscriptionGateway определяет операции управления подписками в шлюзе
type SubscriptionGateway interface {
	GetSubscription(ctx context.Context, id string) (*GatewaySubscription, error)
	PauseSubscription(ctx context.Context, id string) (*GatewaySubscription, error)
	ResumeSubscription(ctx context.Context, id string) (*GatewaySubscription, error)
	CancelAtPeriodEnd(ctx context.Context, id string) (*GatewaySubscription, error)
	ReactivateSubscription(ctx context.Context, id string) (*GatewaySubscription, error)
}

// Gateway объединяет все операции платежного шлюза
type Gateway interface {
	PaymentGateway
	RefundGateway
	SubscriptionGateway
}

// Config конфигурация для клиента Stripe
type Config struct {
	APIKey        string
	WebhookSecret string
}

// Client реализует Gateway поверх Stripe SDK
type Client struct {
	client *client.API
	log    *logger.Logger
}

// NewClient создает новый клиент Stripe
func NewClient(cfg Config, log *logger.Logger) *Client {
	sc := &client.API{}
	sc.Init(cfg.APIKey, nil)

	return &Client{
		client: sc,
		log:    log,
	}
}

// wrapErr переводит ошибку Stripe в доменную ошибку шлюза. Сетевые сбои и
// 5xx считаются повторяемыми, ошибки карты и валидации — нет.
func (c *Client) wrapErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		retryable := stripeErr.HTTPStatusCode >= 500 ||
			stripeErr.Type == stripe.ErrorTypeAPI ||
			stripeErr.Code == stripe.ErrorCodeLockTimeout

		c.log.Error("Stripe API error during %s: type=%s code=%s status=%d message=%s",
			op, stripeErr.Type, stripeErr.Code, stripeErr.HTTPStatusCode, stripeErr.Msg)

		return domain.NewGatewayError(op, string(stripeErr.Code), retryable, err)
	}

	c.log.Error("Network error during Stripe %s: %v", op, err)
	return domain.NewGatewayError(op, "network", true, err)
}

package stripe

import (
	"context"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"

	"github.com/stripe/stripe-go/v78"
)

// PaymentIntent представляет платеж шлюза в нейтральном для сервиса виде
type PaymentIntent struct {
	ID            string
	ClientSecret  string
	Amount        int64
	Currency      string
	Status        string
	CustomerEmail string
	OrderID       string
	CreatorID     string
	Created       time.Time
}

// PaymentIntentStatusSucceeded статус успешно завершенного платежа
const PaymentIntentStatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// CreateDestinationCharge создает платеж с переводом доли криэйтора на его
// подключенный аккаунт. Комиссия платформы удерживается на стороне шлюза
// через application_fee_amount, фактический перевод выполняет Stripe.
func (c *Client) CreateDestinationCharge(ctx context.Context, order domain.Order, creator domain.Creator, idempotencyKey string) (*PaymentIntent, error) {
	c.log.Debug("Creating destination charge for order %s, creator account %s", order.ID, creator.GatewayAccountID)

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String(idempotencyKey),
		},
		Amount:               stripe.Int64(order.Amount),
		Currency:             stripe.String(order.Currency),
		ApplicationFeeAmount: stripe.Int64(order.PlatformFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(creator.GatewayAccountID),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if order.FanEmail != "" {
		params.ReceiptEmail = stripe.String(order.FanEmail)
	}
	params.AddMetadata(metadataOrderIDKey, order.ID.String())
	params.AddMetadata(metadataCreatorIDKey, order.CreatorID.String())
	params.AddMetadata(metadataFanIDKey, order.FanID.String())

	pi, err := c.client.PaymentIntents.New(params)
	if err != nil {
		return nil, c.wrapErr("create_payment_intent", err)
	}

	c.log.Info("Created payment intent %s for order %s, amount %d %s",
		pi.ID, order.ID, pi.Amount, pi.Currency)
	return mapPaymentIntent(pi), nil
}

// GetPaymentIntent возвращает платеж по его ID в шлюзе
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	c.log.Debug("Getting payment intent %s", id)

	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	}

	pi, err := c.client.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, c.wrapErr("get_payment_intent", err)
	}

	return mapPaymentIntent(pi), nil
}

// ListRecentPayments возвращает платежи шлюза, созданные после since,
// от старых к новым
func (c *Client) ListRecentPayments(ctx context.Context, since time.Time, limit int) ([]PaymentIntent, error) {
	c.log.Debug("Listing payment intents created after %s", since.Format(time.RFC3339))

	params := &stripe.PaymentIntentListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Limit:   stripe.Int64(int64(limit)),
		},
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: since.Unix(),
		},
	}

	var intents []PaymentIntent
	iter := c.client.PaymentIntents.List(params)
	for iter.Next() {
		intents = append(intents, *mapPaymentIntent(iter.PaymentIntent()))
		if limit > 0 && len(intents) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, c.wrapErr("list_payment_intents", err)
	}

	// Iterator отдает от новых к старым, сканеру удобнее хронологический порядок
	for i, j := 0, len(intents)-1; i < j; i, j = i+1, j-1 {
		intents[i], intents[j] = intents[j], intents[i]
	}

	return intents, nil
}

func mapPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		Amount:        pi.Amount,
		Currency:      string(pi.Currency),
		Status:        string(pi.Status),
		CustomerEmail: pi.ReceiptEmail,
		OrderID:       pi.Metadata[metadataOrderIDKey],
		CreatorID:     pi.Metadata[metadataCreatorIDKey],
		Created:       time.Unix(pi.Created, 0),
	}
}

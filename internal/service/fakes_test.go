package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	log := logger.New(logger.ERROR)
	log.SetOutput(io.Discard)
	return log
}

// fakeRefundGateway имитирует возвраты шлюза. Платежи из failOn получают
// неповторяемую ошибку.
type fakeRefundGateway struct {
	mu      sync.Mutex
	calls   []stripe.RefundParams
	failOn  map[string]bool
	nextSeq int
}

func newFakeRefundGateway() *fakeRefundGateway {
	return &fakeRefundGateway{failOn: make(map[string]bool)}
}

func (g *fakeRefundGateway) CreateRefund(ctx context.Context, params stripe.RefundParams) (*stripe.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, params)
	if g.failOn[params.PaymentIntentID] {
		return nil, domain.NewGatewayError("create_refund", "card_declined", false, fmt.Errorf("card declined"))
	}

	g.nextSeq++
	return &stripe.RefundResult{
		ID:      fmt.Sprintf("re_fake_%d", g.nextSeq),
		Amount:  params.Amount,
		Status:  "succeeded",
		Created: time.Now(),
	}, nil
}

func (g *fakeRefundGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// fakePaymentGateway имитирует платежные операции шлюза
type fakePaymentGateway struct {
	mu      sync.Mutex
	intents map[string]stripe.PaymentIntent
	nextSeq int
}

func newFakePaymentGateway() *fakePaymentGateway {
	return &fakePaymentGateway{intents: make(map[string]stripe.PaymentIntent)}
}

func (g *fakePaymentGateway) CreateDestinationCharge(ctx context.Context, order domain.Order, creator domain.Creator, idempotencyKey string) (*stripe.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextSeq++
	pi := stripe.PaymentIntent{
		ID:            fmt.Sprintf("pi_fake_%d", g.nextSeq),
		ClientSecret:  fmt.Sprintf("pi_fake_%d_secret", g.nextSeq),
		Amount:        order.Amount,
		Currency:      order.Currency,
		Status:        "requires_payment_method",
		CustomerEmail: order.FanEmail,
		OrderID:       order.ID.String(),
		CreatorID:     order.CreatorID.String(),
		Created:       time.Now(),
	}
	g.intents[pi.ID] = pi
	return &pi, nil
}

func (g *fakePaymentGateway) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pi, ok := g.intents[id]
	if !ok {
		return nil, domain.NewGatewayError("get_payment_intent", "resource_missing", false, fmt.Errorf("no such payment intent"))
	}
	return &pi, nil
}

func (g *fakePaymentGateway) ListRecentPayments(ctx context.Context, since time.Time, limit int) ([]stripe.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []stripe.PaymentIntent
	for _, pi := range g.intents {
		if pi.Created.After(since) {
			out = append(out, pi)
		}
	}
	return out, nil
}

// add помещает готовый платеж в шлюз, минуя создание
func (g *fakePaymentGateway) add(pi stripe.PaymentIntent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[pi.ID] = pi
}

// fakeSubscriptionGateway имитирует операции над подписками шлюза
type fakeSubscriptionGateway struct {
	mu   sync.Mutex
	subs map[string]*stripe.GatewaySubscription
	ops  []string
}

func newFakeSubscriptionGateway() *fakeSubscriptionGateway {
	return &fakeSubscriptionGateway{subs: make(map[string]*stripe.GatewaySubscription)}
}

func (g *fakeSubscriptionGateway) get(id string) *stripe.GatewaySubscription {
	sub, ok := g.subs[id]
	if !ok {
		sub = &stripe.GatewaySubscription{
			ID:                 id,
			Status:             "active",
			CurrentPeriodStart: time.Now(),
			CurrentPeriodEnd:   time.Now().Add(30 * 24 * time.Hour),
		}
		g.subs[id] = sub
	}
	return sub
}

func (g *fakeSubscriptionGateway) GetSubscription(ctx context.Context, id string) (*stripe.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.get(id), nil
}

func (g *fakeSubscriptionGateway) PauseSubscription(ctx context.Context, id string) (*stripe.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "pause:"+id)
	sub := g.get(id)
	sub.Paused = true
	return sub, nil
}

func (g *fakeSubscriptionGateway) ResumeSubscription(ctx context.Context, id string) (*stripe.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "resume:"+id)
	sub := g.get(id)
	sub.Paused = false
	return sub, nil
}

func (g *fakeSubscriptionGateway) CancelAtPeriodEnd(ctx context.Context, id string) (*stripe.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "cancel:"+id)
	sub := g.get(id)
	sub.CancelAtPeriodEnd = true
	return sub, nil
}

func (g *fakeSubscriptionGateway) ReactivateSubscription(ctx context.Context, id string) (*stripe.GatewaySubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, "reactivate:"+id)
	sub := g.get(id)
	sub.CancelAtPeriodEnd = false
	return sub, nil
}

func testCreator(payable bool) domain.Creator {
	return domain.Creator{
		ID:               uuid.New(),
		Email:            "creator@example.com",
		GatewayAccountID: "acct_test",
		PaymentsEnabled:  payable,
		DisplayName:      "Test Creator",
	}
}

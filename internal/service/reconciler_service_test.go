package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	svc         *ReconcilerService
	orderRepo   *repository.InMemoryOrderRepository
	subRepo     *repository.InMemorySubscriptionRepository
	webhookRepo *repository.InMemoryWebhookEventRepository
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	orderRepo := repository.NewInMemoryOrderRepository()
	subRepo := repository.NewInMemorySubscriptionRepository()
	webhookRepo := repository.NewInMemoryWebhookEventRepository()
	svc := NewReconcilerService(repository.NoopTxManager{}, webhookRepo, orderRepo, subRepo, nil, nil, testLogger())

	return &reconcilerFixture{
		svc:         svc,
		orderRepo:   orderRepo,
		subRepo:     subRepo,
		webhookRepo: webhookRepo,
	}
}

func inboundEvent(t *testing.T, externalID, eventType string, data any) domain.InboundEvent {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return domain.InboundEvent{
		ExternalID: externalID,
		Type:       eventType,
		Created:    time.Now(),
		Data:       raw,
		Payload:    raw,
	}
}

func (f *reconcilerFixture) seedOrder(t *testing.T) domain.Order {
	t.Helper()

	order, err := f.orderRepo.Create(context.Background(), domain.Order{
		ID:              uuid.New(),
		FanID:           uuid.New(),
		CreatorID:       uuid.New(),
		Amount:          10000,
		CreatorEarnings: 7000,
		PlatformFee:     3000,
		Currency:        "usd",
		Status:          domain.OrderStatusPending,
	})
	require.NoError(t, err)
	return order
}

func (f *reconcilerFixture) seedSubscription(t *testing.T, status domain.SubscriptionStatus, externalRef string) domain.SubscriptionOrder {
	t.Helper()

	sub, err := f.subRepo.Create(context.Background(), domain.SubscriptionOrder{
		ID:                      uuid.New(),
		FanID:                   uuid.New(),
		CreatorID:               uuid.New(),
		TierID:                  "gold",
		TotalAmount:             1500,
		PlatformFee:             450,
		CreatorEarnings:         1050,
		Currency:                "usd",
		BillingPeriod:           domain.BillingPeriodMonthly,
		Status:                  status,
		ExternalSubscriptionRef: externalRef,
		CurrentPeriodStart:      time.Now(),
		CurrentPeriodEnd:        time.Now().AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	return sub
}

func TestHandleEventPaymentSucceededLinksOrder(t *testing.T) {
	f := newReconcilerFixture(t)
	order := f.seedOrder(t)

	event := inboundEvent(t, "evt_1", "payment_intent.succeeded", paymentIntentPayload{
		ID:       "pi_link",
		Amount:   10000,
		Currency: "usd",
		Status:   "succeeded",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	linked, err := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_link", linked.PaymentIntentReference)

	rec, err := f.webhookRepo.GetByExternalID(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, rec.Status)
}

func TestHandleEventDuplicateDelivery(t *testing.T) {
	f := newReconcilerFixture(t)
	order := f.seedOrder(t)

	event := inboundEvent(t, "evt_dup", "payment_intent.succeeded", paymentIntentPayload{
		ID:       "pi_dup",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	// Повторная доставка того же события не трогает состояние
	outcome, err = f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileDuplicate, outcome)

	// В журнале одна запись на событие
	events, err := f.webhookRepo.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleEventConflictingPaymentLink(t *testing.T) {
	f := newReconcilerFixture(t)
	order := f.seedOrder(t)
	require.NoError(t, f.orderRepo.SetPaymentReference(context.Background(), order.ID, "pi_first"))

	event := inboundEvent(t, "evt_conflict", "payment_intent.succeeded", paymentIntentPayload{
		ID:       "pi_second",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	// Конфликт не перетирает существующую привязку
	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileSkipped, outcome)

	current, err := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_first", current.PaymentIntentReference)

	rec, err := f.webhookRepo.GetByExternalID(context.Background(), "evt_conflict")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusSkipped, rec.Status)
	assert.NotEmpty(t, rec.ErrorMessage)
}

func TestHandleEventUnknownTypeSkipped(t *testing.T) {
	f := newReconcilerFixture(t)

	event := inboundEvent(t, "evt_unknown", "account.updated", map[string]string{"id": "acct_1"})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileSkipped, outcome)

	rec, err := f.webhookRepo.GetByExternalID(context.Background(), "evt_unknown")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusSkipped, rec.Status)
}

func TestHandleEventOrphanPaymentConflict(t *testing.T) {
	f := newReconcilerFixture(t)

	// Платеж без order_id в метаданных подберет сканер, событие пропускается
	event := inboundEvent(t, "evt_orphan", "payment_intent.succeeded", paymentIntentPayload{
		ID: "pi_orphan", Amount: 5000, Status: "succeeded",
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileSkipped, outcome)
}

func TestHandleEventFailedEventRetries(t *testing.T) {
	f := newReconcilerFixture(t)

	// Неразобранный payload проваливает обработку
	bad := domain.InboundEvent{
		ExternalID: "evt_retry",
		Type:       "payment_intent.succeeded",
		Created:    time.Now(),
		Data:       []byte("{broken"),
		Payload:    []byte("{broken"),
	}

	outcome, err := f.svc.HandleEvent(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, domain.ReconcileFailed, outcome)

	rec, err := f.webhookRepo.GetByExternalID(context.Background(), "evt_retry")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusFailed, rec.Status)

	// Запись о неудаче не блокирует повторную доставку
	order := f.seedOrder(t)
	good := inboundEvent(t, "evt_retry", "payment_intent.succeeded", paymentIntentPayload{
		ID:       "pi_retry",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	outcome, err = f.svc.HandleEvent(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	rec, err = f.webhookRepo.GetByExternalID(context.Background(), "evt_retry")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookEventStatusProcessed, rec.Status)
}

func TestHandleEventSubscriptionSync(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusActive, "sub_sync")

	periodEnd := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
	event := inboundEvent(t, "evt_sub_sync", "customer.subscription.updated", subscriptionPayload{
		ID:                 "sub_sync",
		Status:             "past_due",
		CurrentPeriodStart: time.Now().Unix(),
		CurrentPeriodEnd:   periodEnd.Unix(),
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	synced, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPending, synced.Status)
	assert.True(t, synced.CurrentPeriodEnd.Equal(periodEnd))
}

func TestHandleEventSubscriptionSameStatusRedelivery(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusActive, "sub_same")

	// Шлюз доставляет минимум один раз: переход в тот же статус допустим
	event := inboundEvent(t, "evt_sub_same", "customer.subscription.updated", subscriptionPayload{
		ID:     "sub_same",
		Status: "active",
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	synced, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, synced.Status)
}

func TestHandleEventSubscriptionDeleted(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusActive, "sub_gone")

	event := inboundEvent(t, "evt_sub_gone", "customer.subscription.deleted", subscriptionPayload{
		ID:     "sub_gone",
		Status: "canceled",
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	cancelled, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.NextBillingDate)
}

func TestHandleEventCheckoutLinksSubscription(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusPending, "")

	event := inboundEvent(t, "evt_checkout", "checkout.session.completed", checkoutSessionPayload{
		ID:           "cs_1",
		Mode:         "subscription",
		Subscription: "sub_new",
		Metadata:     map[string]string{"subscription_order_id": sub.ID.String()},
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	linked, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "sub_new", linked.ExternalSubscriptionRef)
	assert.Equal(t, domain.SubscriptionStatusActive, linked.Status)
}

func TestHandleEventInvoicePaymentFailed(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusActive, "sub_invoice")

	event := inboundEvent(t, "evt_invoice_fail", "invoice.payment_failed", invoicePayload{
		ID:           "in_1",
		Subscription: "sub_invoice",
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	synced, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPending, synced.Status)
	assert.Nil(t, synced.NextBillingDate)
}

func TestHandleEventInvoicePaymentSucceededAdvancesPeriod(t *testing.T) {
	f := newReconcilerFixture(t)
	sub := f.seedSubscription(t, domain.SubscriptionStatusPending, "sub_renew")

	periodEnd := time.Now().AddDate(0, 1, 0).Truncate(time.Second)
	event := inboundEvent(t, "evt_invoice_ok", "invoice.payment_succeeded", invoicePayload{
		ID:           "in_2",
		Subscription: "sub_renew",
		PeriodEnd:    periodEnd.Unix(),
	})

	outcome, err := f.svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	synced, err := f.subRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, synced.Status)
	require.NotNil(t, synced.NextBillingDate)
	assert.True(t, synced.NextBillingDate.Equal(periodEnd))
}

// observedTxManager отмечает в контексте открытую транзакцию,
// чтобы репозиторий мог различить вызовы внутри и вне нее.
type observedTxManager struct{}

type observedTxKey struct{}

func (observedTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, observedTxKey{}, true))
}

// txAwareWebhookRepo считает, из какого контекста пришла проверка дедупликации
type txAwareWebhookRepo struct {
	*repository.InMemoryWebhookEventRepository
	lookupsInTx    int
	lookupsOutside int
}

func (r *txAwareWebhookRepo) GetByExternalID(ctx context.Context, externalEventID string) (domain.WebhookEvent, error) {
	if ctx.Value(observedTxKey{}) != nil {
		r.lookupsInTx++
	} else {
		r.lookupsOutside++
	}
	return r.InMemoryWebhookEventRepository.GetByExternalID(ctx, externalEventID)
}

func TestHandleEventDedupCheckRunsInTransaction(t *testing.T) {
	orderRepo := repository.NewInMemoryOrderRepository()
	subRepo := repository.NewInMemorySubscriptionRepository()
	webhookRepo := &txAwareWebhookRepo{InMemoryWebhookEventRepository: repository.NewInMemoryWebhookEventRepository()}
	svc := NewReconcilerService(observedTxManager{}, webhookRepo, orderRepo, subRepo, nil, nil, testLogger())

	order, err := orderRepo.Create(context.Background(), domain.Order{
		ID:              uuid.New(),
		FanID:           uuid.New(),
		CreatorID:       uuid.New(),
		Amount:          10000,
		CreatorEarnings: 7000,
		PlatformFee:     3000,
		Currency:        "usd",
		Status:          domain.OrderStatusPending,
	})
	require.NoError(t, err)

	event := inboundEvent(t, "evt_tx_dedup", "payment_intent.succeeded", paymentIntentPayload{
		ID:       "pi_tx_dedup",
		Amount:   10000,
		Currency: "usd",
		Status:   "succeeded",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileOK, outcome)

	// Проверка дедупликации делит транзакцию с записью состояния
	assert.Positive(t, webhookRepo.lookupsInTx)
	assert.Zero(t, webhookRepo.lookupsOutside)

	// Повторная доставка схлопывается в том же месте
	outcome, err = svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileDuplicate, outcome)
	assert.Zero(t, webhookRepo.lookupsOutside)
}

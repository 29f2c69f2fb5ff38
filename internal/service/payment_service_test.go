package service

import (
	"context"
	"testing"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/idempotency"
	"github.com/clipfan/reconciliation-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	svc       *PaymentService
	orderRepo *repository.InMemoryOrderRepository
	gateway   *fakePaymentGateway
	creator   domain.Creator
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	orderRepo := repository.NewInMemoryOrderRepository()
	gateway := newFakePaymentGateway()
	creator := testCreator(true)
	dir := repository.NewStaticCreatorDirectory(creator)
	svc := NewPaymentService(orderRepo, dir, gateway, idempotency.NewMemoryGuard(), testLogger())

	return &paymentFixture{svc: svc, orderRepo: orderRepo, gateway: gateway, creator: creator}
}

func (f *paymentFixture) seedOrder(t *testing.T, status domain.OrderStatus) domain.Order {
	t.Helper()

	order, err := f.orderRepo.Create(context.Background(), domain.Order{
		ID:              uuid.New(),
		FanID:           uuid.New(),
		FanEmail:        "fan@example.com",
		CreatorID:       f.creator.ID,
		Amount:          10000,
		CreatorEarnings: 7000,
		PlatformFee:     3000,
		Currency:        "usd",
		Status:          status,
		VideoRequestID:  uuid.NewString(),
	})
	require.NoError(t, err)
	return order
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)

	out, err := f.svc.CreatePaymentIntent(context.Background(), order.ID)
	require.NoError(t, err)

	assert.NotEmpty(t, out.PaymentIntentID)
	assert.NotEmpty(t, out.ClientSecret)
	assert.Equal(t, int64(10000), out.Amount)
	assert.Equal(t, "usd", out.Currency)

	linked, err := f.orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, out.PaymentIntentID, linked.PaymentIntentReference)
}

func TestCreatePaymentIntentReturnsExisting(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)
	ctx := context.Background()

	first, err := f.svc.CreatePaymentIntent(ctx, order.ID)
	require.NoError(t, err)

	// Повторный запрос не создает второй платеж
	second, err := f.svc.CreatePaymentIntent(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
}

func TestCreatePaymentIntentStatusCheck(t *testing.T) {
	f := newPaymentFixture(t)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
		domain.OrderStatusExpired,
	} {
		order := f.seedOrder(t, status)
		_, err := f.svc.CreatePaymentIntent(context.Background(), order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "status %s", status)
	}
}

func TestCreatePaymentIntentCreatorNotPayable(t *testing.T) {
	orderRepo := repository.NewInMemoryOrderRepository()
	creator := testCreator(false)
	dir := repository.NewStaticCreatorDirectory(creator)
	svc := NewPaymentService(orderRepo, dir, newFakePaymentGateway(), idempotency.NewMemoryGuard(), testLogger())

	order, err := orderRepo.Create(context.Background(), domain.Order{
		ID:        uuid.New(),
		FanID:     uuid.New(),
		CreatorID: creator.ID,
		Amount:    5000,
		Currency:  "usd",
		Status:    domain.OrderStatusPending,
	})
	require.NoError(t, err)

	_, err = svc.CreatePaymentIntent(context.Background(), order.ID)
	assert.ErrorIs(t, err, domain.ErrCreatorNotPayable)
}

func TestCreatePaymentIntentUnknownOrder(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.CreatePaymentIntent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetPaymentStatus(t *testing.T) {
	f := newPaymentFixture(t)
	order := f.seedOrder(t, domain.OrderStatusPending)
	ctx := context.Background()

	out, err := f.svc.CreatePaymentIntent(ctx, order.ID)
	require.NoError(t, err)

	pi, err := f.svc.GetPaymentStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, out.PaymentIntentID, pi.ID)
	assert.Equal(t, "requires_payment_method", pi.Status)

	// Заказ без платежа
	unpaid := f.seedOrder(t, domain.OrderStatusPending)
	_, err = f.svc.GetPaymentStatus(ctx, unpaid.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

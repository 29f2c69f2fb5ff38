package service

import (
	"context"
	"testing"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subscriptionFixture struct {
	svc     *SubscriptionService
	subRepo *repository.InMemorySubscriptionRepository
	gateway *fakeSubscriptionGateway
	creator domain.Creator
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	t.Helper()

	subRepo := repository.NewInMemorySubscriptionRepository()
	gateway := newFakeSubscriptionGateway()
	creator := testCreator(true)
	dir := repository.NewStaticCreatorDirectory(creator)
	svc := NewSubscriptionService(subRepo, dir, gateway, nil, testLogger())

	return &subscriptionFixture{svc: svc, subRepo: subRepo, gateway: gateway, creator: creator}
}

func (f *subscriptionFixture) subscribe(t *testing.T, fanID uuid.UUID) domain.SubscriptionOrder {
	t.Helper()

	sub, err := f.svc.CreateSubscription(context.Background(), fanID, SubscriptionRequest{
		CreatorID:     f.creator.ID.String(),
		TierID:        "gold",
		Amount:        1500,
		Currency:      "usd",
		BillingPeriod: domain.BillingPeriodMonthly,
	})
	require.NoError(t, err)
	return sub
}

// activate имитирует привязку подписки к шлюзу после оформления
func (f *subscriptionFixture) activate(t *testing.T, sub domain.SubscriptionOrder, externalRef string) domain.SubscriptionOrder {
	t.Helper()

	sub.Status = domain.SubscriptionStatusActive
	sub.ExternalSubscriptionRef = externalRef
	require.NoError(t, f.subRepo.Update(context.Background(), sub))
	return sub
}

func TestCreateSubscription(t *testing.T) {
	f := newSubscriptionFixture(t)

	sub := f.subscribe(t, uuid.New())

	assert.Equal(t, domain.SubscriptionStatusPending, sub.Status)
	assert.Equal(t, int64(1500), sub.TotalAmount)
	assert.Equal(t, sub.TotalAmount, sub.CreatorEarnings+sub.PlatformFee)
	assert.Equal(t, int64(450), sub.PlatformFee)
	assert.Empty(t, sub.ExternalSubscriptionRef)
	assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))
}

func TestCreateSubscriptionRejectsSecondLive(t *testing.T) {
	f := newSubscriptionFixture(t)
	fanID := uuid.New()

	first := f.subscribe(t, fanID)
	f.activate(t, first, "sub_live")

	_, err := f.svc.CreateSubscription(context.Background(), fanID, SubscriptionRequest{
		CreatorID:     f.creator.ID.String(),
		TierID:        "silver",
		Amount:        500,
		Currency:      "usd",
		BillingPeriod: domain.BillingPeriodMonthly,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestSubscriptionPauseResume(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	fanID := uuid.New()

	sub := f.activate(t, f.subscribe(t, fanID), "sub_pr")

	paused, err := f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionPause,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPaused, paused.Status)
	assert.NotNil(t, paused.PausedAt)

	resumed, err := f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionResume,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, resumed.Status)
	assert.Nil(t, resumed.PausedAt)

	// Шлюз получил обе операции в порядке применения
	assert.Equal(t, []string{"pause:sub_pr", "resume:sub_pr"}, f.gateway.ops)
}

func TestSubscriptionCancelAndReactivate(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	fanID := uuid.New()

	sub := f.activate(t, f.subscribe(t, fanID), "sub_cr")

	cancelled, err := f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.CancelAtPeriodEnd)
	assert.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.NextBillingDate)

	// Оплаченный период еще не истек, реактивация возможна
	reactivated, err := f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionReactivate,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, reactivated.Status)
	assert.False(t, reactivated.CancelAtPeriodEnd)
	assert.Nil(t, reactivated.CancelledAt)

	assert.Equal(t, []string{"cancel:sub_cr", "reactivate:sub_cr"}, f.gateway.ops)
}

func TestSubscriptionActionPreconditions(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	fanID := uuid.New()

	sub := f.activate(t, f.subscribe(t, fanID), "sub_pre")

	// resume активной подписки недопустим
	_, err := f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionResume,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// reactivate активной подписки недопустим
	_, err = f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionReactivate,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Шлюз не трогали
	assert.Empty(t, f.gateway.ops)
}

func TestSubscriptionActionOwnership(t *testing.T) {
	f := newSubscriptionFixture(t)

	sub := f.activate(t, f.subscribe(t, uuid.New()), "sub_own")

	_, err := f.svc.ApplyAction(context.Background(), uuid.New(), domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionPause,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, f.gateway.ops)
}

func TestSubscriptionPendingActionsAreLocal(t *testing.T) {
	f := newSubscriptionFixture(t)
	fanID := uuid.New()

	// Подписка еще не оформлена в шлюзе: действий над ней шлюз не видит
	sub := f.subscribe(t, fanID)
	sub.Status = domain.SubscriptionStatusActive
	require.NoError(t, f.subRepo.Update(context.Background(), sub))

	cancelled, err := f.svc.ApplyAction(context.Background(), fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	assert.Empty(t, f.gateway.ops)
}

func TestDeleteSubscription(t *testing.T) {
	f := newSubscriptionFixture(t)
	ctx := context.Background()
	fanID := uuid.New()

	sub := f.activate(t, f.subscribe(t, fanID), "sub_del")

	// Живую подписку удалить нельзя
	err := f.svc.DeleteSubscription(ctx, fanID, sub.ID)
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)

	_, err = f.svc.ApplyAction(ctx, fanID, domain.SubscriptionActionRequest{
		OrderID: sub.ID.String(),
		Action:  domain.SubscriptionActionCancel,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSubscription(ctx, fanID, sub.ID))

	_, err = f.svc.GetSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

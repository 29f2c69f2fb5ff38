package service

import (
	"context"
	"testing"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPaidOrder(t *testing.T, repo *repository.InMemoryOrderRepository, amount int64, paymentRef string) domain.Order {
	t.Helper()

	order := domain.Order{
		ID:              uuid.New(),
		FanID:           uuid.New(),
		CreatorID:       uuid.New(),
		Amount:          amount,
		CreatorEarnings: amount * 70 / 100,
		PlatformFee:     amount - amount*70/100,
		Currency:        "usd",
		Status:          domain.OrderStatusPending,
	}
	created, err := repo.Create(context.Background(), order)
	require.NoError(t, err)

	if paymentRef != "" {
		require.NoError(t, repo.SetPaymentReference(context.Background(), created.ID, paymentRef))
		created.PaymentIntentReference = paymentRef
	}
	return created
}

func newRefundService(t *testing.T) (*RefundService, *repository.InMemoryOrderRepository, *repository.InMemoryRefundRepository, *fakeRefundGateway) {
	t.Helper()

	orderRepo := repository.NewInMemoryOrderRepository()
	refundRepo := repository.NewInMemoryRefundRepository()
	gateway := newFakeRefundGateway()
	svc := NewRefundService(orderRepo, refundRepo, gateway, nil, nil, time.Hour, testLogger())
	return svc, orderRepo, refundRepo, gateway
}

func TestProcessRefundFull(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)
	order := seedPaidOrder(t, orderRepo, 10000, "pi_1")

	rec, err := svc.ProcessRefund(context.Background(), RefundInput{
		OrderID:         order.ID,
		Reason:          domain.RefundReasonCreatorRejection,
		InitiatedByType: domain.InitiatorCreator,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RefundStatusSucceeded, rec.Status)
	assert.Equal(t, int64(10000), rec.RefundAmount)
	assert.Equal(t, int64(3000), rec.PlatformFeeRefund)
	assert.Equal(t, int64(7000), rec.CreatorEarningsRefund)
	assert.NotEmpty(t, rec.ExternalRefundRef)
	assert.Equal(t, 1, gateway.callCount())

	// Полный возврат переводит заказ в refunded
	updated, err := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, updated.Status)
}

func TestProcessRefundPartialKeepsStatus(t *testing.T) {
	svc, orderRepo, _, _ := newRefundService(t)
	order := seedPaidOrder(t, orderRepo, 10000, "pi_1")

	rec, err := svc.ProcessRefund(context.Background(), RefundInput{
		OrderID:         order.ID,
		Amount:          2500,
		Reason:          domain.RefundReasonFanCancellation,
		InitiatedByType: domain.InitiatorFan,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2500), rec.RefundAmount)
	// Пропорциональная доля комиссии: 2500 * 3000/10000
	assert.Equal(t, int64(750), rec.PlatformFeeRefund)
	assert.Equal(t, int64(1750), rec.CreatorEarningsRefund)

	updated, err := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, updated.Status)
}

func TestProcessRefundValidation(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)

	// Заказ без платежа
	unpaid := seedPaidOrder(t, orderRepo, 5000, "")
	_, err := svc.ProcessRefund(context.Background(), RefundInput{OrderID: unpaid.ID, Reason: domain.RefundReasonOther, InitiatedByType: domain.InitiatorAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Сумма больше остатка
	paid := seedPaidOrder(t, orderRepo, 5000, "pi_2")
	_, err = svc.ProcessRefund(context.Background(), RefundInput{OrderID: paid.ID, Amount: 6000, Reason: domain.RefundReasonOther, InitiatedByType: domain.InitiatorAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Несуществующий заказ
	_, err = svc.ProcessRefund(context.Background(), RefundInput{OrderID: uuid.New(), Reason: domain.RefundReasonOther, InitiatedByType: domain.InitiatorAdmin})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 0, gateway.callCount())
}

func TestProcessRefundGatewayFailureKeepsRecord(t *testing.T) {
	svc, orderRepo, refundRepo, gateway := newRefundService(t)
	order := seedPaidOrder(t, orderRepo, 10000, "pi_bad")
	gateway.failOn["pi_bad"] = true

	rec, err := svc.ProcessRefund(context.Background(), RefundInput{
		OrderID:         order.ID,
		Reason:          domain.RefundReasonFanCancellation,
		InitiatedByType: domain.InitiatorFan,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGateway)

	// Запись остается в failed для разбора, заказ не меняется
	stored, getErr := refundRepo.GetByID(context.Background(), rec.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.RefundStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)

	updated, getErr := orderRepo.GetByID(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.OrderStatusPending, updated.Status)
}

func TestProcessRefundAlreadyRefunded(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)
	order := seedPaidOrder(t, orderRepo, 10000, "pi_1")

	_, err := svc.ProcessRefund(context.Background(), RefundInput{
		OrderID: order.ID, Reason: domain.RefundReasonOther, InitiatedByType: domain.InitiatorAdmin,
	})
	require.NoError(t, err)

	// Повторный полный возврат отклоняется до обращения к шлюзу
	_, err = svc.ProcessRefund(context.Background(), RefundInput{
		OrderID: order.ID, Reason: domain.RefundReasonOther, InitiatedByType: domain.InitiatorAdmin,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, gateway.callCount())
}

func TestProcessBatchSpecificOrders(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ref := "pi_batch_" + string(rune('a'+i))
		order := seedPaidOrder(t, orderRepo, 10000, ref)
		ids = append(ids, order.ID.String())
	}
	// Третий заказ падает на стороне шлюза
	gateway.failOn["pi_batch_c"] = true

	result, err := svc.ProcessBatch(context.Background(), domain.RefundBatchRequest{
		Type:     domain.RefundBatchSpecificOrders,
		OrderIDs: ids,
		Reason:   domain.RefundReasonAdminRefund,
	}, domain.InitiatorAdmin, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	assert.Equal(t, int64(40000), result.TotalAmount)
	assert.Len(t, result.Items, 5)

	// Сбой одного заказа не прервал остальные
	for _, item := range result.Items {
		if item.Success {
			assert.NotEqual(t, uuid.Nil, item.RefundID)
		} else {
			assert.NotEmpty(t, item.Error)
		}
	}
}

func TestProcessBatchDryRun(t *testing.T) {
	svc, orderRepo, refundRepo, gateway := newRefundService(t)

	order := seedPaidOrder(t, orderRepo, 7500, "pi_dry")

	result, err := svc.ProcessBatch(context.Background(), domain.RefundBatchRequest{
		Type:     domain.RefundBatchSpecificOrders,
		OrderIDs: []string{order.ID.String()},
		Reason:   domain.RefundReasonSystemExpiry,
		DryRun:   true,
	}, domain.InitiatorSystem, nil)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, int64(7500), result.TotalAmount)

	// Побочных эффектов нет: ни обращений к шлюзу, ни записей возвратов
	assert.Equal(t, 0, gateway.callCount())
	records, err := refundRepo.GetByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessBatchIdempotentRerun(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)

	order := seedPaidOrder(t, orderRepo, 10000, "pi_rerun")
	req := domain.RefundBatchRequest{
		Type:     domain.RefundBatchSpecificOrders,
		OrderIDs: []string{order.ID.String()},
		Reason:   domain.RefundReasonAdminRefund,
	}

	first, err := svc.ProcessBatch(context.Background(), req, domain.InitiatorAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SuccessCount)

	// Повторный запуск пропускает уже возвращенный заказ
	second, err := svc.ProcessBatch(context.Background(), req, domain.InitiatorAdmin, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SuccessCount)
	assert.Equal(t, 1, second.FailureCount)
	assert.Equal(t, 1, gateway.callCount())
}

func TestProcessBatchInvalidRequest(t *testing.T) {
	svc, _, _, _ := newRefundService(t)

	_, err := svc.ProcessBatch(context.Background(), domain.RefundBatchRequest{
		Type:   domain.RefundBatchSpecificOrders,
		Reason: domain.RefundReasonAdminRefund,
	}, domain.InitiatorAdmin, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.ProcessBatch(context.Background(), domain.RefundBatchRequest{
		Type:   "everything",
		Reason: domain.RefundReasonAdminRefund,
	}, domain.InitiatorAdmin, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessRefundCarriesIdempotencyKey(t *testing.T) {
	svc, orderRepo, _, gateway := newRefundService(t)
	order := seedPaidOrder(t, orderRepo, 10000, "pi_idem")

	rec, err := svc.ProcessRefund(context.Background(), RefundInput{
		OrderID:         order.ID,
		Amount:          2500,
		Reason:          domain.RefundReasonFanCancellation,
		InitiatedByType: domain.InitiatorFan,
	})
	require.NoError(t, err)

	// Ключ выводится из записи возврата: повтор того же возврата приходит
	// в шлюз с тем же ключом и не создает второго движения денег
	require.Len(t, gateway.calls, 1)
	assert.Equal(t, "refund-"+rec.ID.String(), gateway.calls[0].IdempotencyKey)
	assert.NotEmpty(t, gateway.calls[0].IdempotencyKey)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/repository"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticVerifier возвращает заранее заданное событие либо ошибку подписи
type staticVerifier struct {
	event domain.InboundEvent
	err   error
}

func (v staticVerifier) VerifyEvent(payload []byte, signatureHeader string) (domain.InboundEvent, error) {
	if v.err != nil {
		return domain.InboundEvent{}, v.err
	}
	return v.event, nil
}

// brokenWebhookRepo имитирует недоступное хранилище журнала событий
type brokenWebhookRepo struct{}

func (brokenWebhookRepo) GetByExternalID(ctx context.Context, externalEventID string) (domain.WebhookEvent, error) {
	return domain.WebhookEvent{}, errors.New("storage unavailable")
}

func (brokenWebhookRepo) Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, error) {
	return domain.WebhookEvent{}, errors.New("storage unavailable")
}

func (brokenWebhookRepo) List(ctx context.Context, eventType string, limit int) ([]domain.WebhookEvent, error) {
	return nil, errors.New("storage unavailable")
}

func newWebhookRouter(t *testing.T, verifier staticVerifier, webhookRepo repository.WebhookEventRepository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New(logger.FATAL)
	reconciler := service.NewReconcilerService(
		repository.NoopTxManager{},
		webhookRepo,
		repository.NewInMemoryOrderRepository(),
		repository.NewInMemorySubscriptionRepository(),
		nil, nil, log,
	)

	router := gin.New()
	router.POST("/webhooks/stripe", NewWebhookHandler(verifier, reconciler, log).HandleStripeWebhook)
	return router
}

func postWebhook(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcknowledgedDespiteInternalFailure(t *testing.T) {
	verifier := staticVerifier{event: domain.InboundEvent{
		ExternalID: "evt_internal_failure",
		Type:       "payment_intent.succeeded",
		Created:    time.Now(),
		Data:       json.RawMessage(`{}`),
	}}
	router := newWebhookRouter(t, verifier, brokenWebhookRepo{})

	rec := postWebhook(t, router)

	// Принятое событие подтверждается даже при внутреннем сбое: шлюз не
	// должен устраивать шторм повторных доставок из-за наших проблем
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])
}

func TestWebhookBadSignatureNoSideEffects(t *testing.T) {
	webhookRepo := repository.NewInMemoryWebhookEventRepository()
	router := newWebhookRouter(t, staticVerifier{err: errors.New("signature mismatch")}, webhookRepo)

	rec := postWebhook(t, router)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	events, err := webhookRepo.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWebhookAcknowledgesUnhandledType(t *testing.T) {
	webhookRepo := repository.NewInMemoryWebhookEventRepository()
	verifier := staticVerifier{event: domain.InboundEvent{
		ExternalID: "evt_unhandled",
		Type:       "account.updated",
		Created:    time.Now(),
		Data:       json.RawMessage(`{}`),
	}}
	router := newWebhookRouter(t, verifier, webhookRepo)

	rec := postWebhook(t, router)

	require.Equal(t, http.StatusOK, rec.Code)

	events, err := webhookRepo.List(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.WebhookEventStatusSkipped, events[0].Status)
}

package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/clipfan/reconciliation-service/internal/integration/stripe"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody предел размера тела вебхука
const maxWebhookBody = 64 * 1024

// WebhookHandler обработчик для вебхуков платежного шлюза
type WebhookHandler struct {
	verifier   stripe.WebhookVerifier
	reconciler *service.ReconcilerService
	log        *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(verifier stripe.WebhookVerifier, reconciler *service.ReconcilerService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		log:        log,
	}
}

// HandleStripeWebhook принимает событие шлюза. Подпись проверяется до любых
// побочных эффектов: событие с неверной подписью не попадает даже в журнал.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Error("Failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read webhook body"})
		return
	}

	event, err := h.verifier.VerifyEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("Webhook signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook signature"})
		return
	}

	// Принятое событие подтверждается всегда: внутренние сбои фиксируются
	// в журнале со статусом failed и разбираются оператором, а не повторной
	// доставкой шлюза
	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), event)
	if err != nil {
		h.log.Error("Failed to process webhook event %s: %v", event.ExternalID, err)
	} else {
		h.log.Debug("Webhook event %s handled: %s", event.ExternalID, outcome)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// ListEvents возвращает журнал обработанных событий для разбора админом
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.reconciler.ListEvents(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

package handlers

import (
	"net/http"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentIntentRequest запрос на оплату заказа видео
type PaymentIntentRequest struct {
	Amount         int64             `json:"amount" binding:"required,gt=0"`
	Currency       string            `json:"currency" binding:"required,len=3"`
	CreatorID      string            `json:"creatorId" binding:"required,uuid4"`
	RequestDetails map[string]string `json:"requestDetails,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// PaymentHandler обработчик для платежей
type PaymentHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	log      *logger.Logger
}

// NewPaymentHandler создает новый обработчик платежей
func NewPaymentHandler(orders *service.OrderService, payments *service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders:   orders,
		payments: payments,
		log:      log,
	}
}

// CreatePaymentIntent создает заказ с расчетом долей и платеж шлюза для него
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
	fanID, fanEmail, ok := authedUser(c)
	if !ok {
		return
	}

	var req PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), fanID, fanEmail, domain.OrderRequest{
		CreatorID:      req.CreatorID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		VideoRequestID: req.IdempotencyKey,
		Metadata:       req.RequestDetails,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	intent, err := h.payments.CreatePaymentIntent(c.Request.Context(), order.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Created payment intent %s for order %s", intent.PaymentIntentID, order.ID)
	c.JSON(http.StatusCreated, gin.H{
		"orderId":         order.ID,
		"paymentIntentId": intent.PaymentIntentID,
		"clientSecret":    intent.ClientSecret,
		"amount":          intent.Amount,
		"currency":        intent.Currency,
	})
}

// GetPaymentStatus возвращает состояние платежа заказа в шлюзе
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if order.FanID != fanID {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	pi, err := h.payments.GetPaymentStatus(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentIntentId": pi.ID,
		"status":          pi.Status,
		"amount":          pi.Amount,
		"currency":        pi.Currency,
	})
}

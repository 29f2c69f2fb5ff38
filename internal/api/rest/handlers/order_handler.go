package handlers

import (
	"net/http"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler обработчик для заказов видео
type OrderHandler struct {
	service *service.OrderService
	log     *logger.Logger
}

// NewOrderHandler создает новый обработчик заказов
func NewOrderHandler(svc *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		log:     log,
	}
}

// CreateOrder создает заказ видео
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	fanID, fanEmail, ok := authedUser(c)
	if !ok {
		return
	}

	var req domain.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), fanID, fanEmail, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Created order with ID: %s", order.ID)
	c.JSON(http.StatusCreated, order)
}

// GetOrders возвращает заказы текущего фаната
func (h *OrderHandler) GetOrders(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	orders, err := h.service.ListFanOrders(c.Request.Context(), fanID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetOrder возвращает заказ по ID. Чужой заказ не раскрывается.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	order, ok := h.ownedOrder(c, fanID)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder отменяет заказ по политике отмены
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	order, ok := h.ownedOrder(c, fanID)
	if !ok {
		return
	}

	var req domain.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.CancelOrder(c.Request.Context(), order.ID, domain.InitiatorFan, &fanID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Cancelled order %s, refund %d", order.ID, outcome.Decision.RefundAmount)
	c.JSON(http.StatusOK, outcome)
}

// PreviewCancellation возвращает решение политики отмены без побочных эффектов
func (h *OrderHandler) PreviewCancellation(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	order, ok := h.ownedOrder(c, fanID)
	if !ok {
		return
	}

	decision, err := h.service.PreviewCancellation(c.Request.Context(), order.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// UpdateOrderStatus продвигает заказ по жизненному циклу исполнения.
// Используется сервисом криэйторов, требует отдельной области доступа.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return
	}

	type updateStatusRequest struct {
		Status string `json:"status" binding:"required,oneof=accepted recording processing completed"`
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var order domain.Order
	switch domain.OrderStatus(req.Status) {
	case domain.OrderStatusAccepted:
		order, err = h.service.AcceptOrder(c.Request.Context(), id)
	case domain.OrderStatusRecording:
		order, err = h.service.StartRecording(c.Request.Context(), id)
	case domain.OrderStatusProcessing:
		order, err = h.service.StartProcessing(c.Request.Context(), id)
	case domain.OrderStatusCompleted:
		order, err = h.service.CompleteOrder(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Updated order %s to status: %s", id, order.Status)
	c.JSON(http.StatusOK, order)
}

// ownedOrder загружает заказ из пути и проверяет владение
func (h *OrderHandler) ownedOrder(c *gin.Context, fanID uuid.UUID) (domain.Order, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return domain.Order{}, false
	}

	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return domain.Order{}, false
	}
	if order.FanID != fanID {
		// Чужие заказы неотличимы от несуществующих
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return domain.Order{}, false
	}

	return order, true
}

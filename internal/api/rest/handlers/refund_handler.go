package handlers

import (
	"net/http"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RefundHandler обработчик возвратов, доступен только админам
type RefundHandler struct {
	service *service.RefundService
	log     *logger.Logger
}

// NewRefundHandler создает новый обработчик возвратов
func NewRefundHandler(svc *service.RefundService, log *logger.Logger) *RefundHandler {
	return &RefundHandler{
		service: svc,
		log:     log,
	}
}

// ProcessBatch запускает пакетную обработку возвратов
func (h *RefundHandler) ProcessBatch(c *gin.Context) {
	adminID, _, ok := authedUser(c)
	if !ok {
		return
	}

	var req domain.RefundBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ProcessBatch(c.Request.Context(), req, domain.InitiatorAdmin, &adminID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListCandidates возвращает кандидатов на возврат по истекшим заказам
// с посчитанной суммой, без побочных эффектов
func (h *RefundHandler) ListCandidates(c *gin.Context) {
	adminID, _, ok := authedUser(c)
	if !ok {
		return
	}

	result, err := h.service.ProcessBatch(c.Request.Context(), domain.RefundBatchRequest{
		Type:   domain.RefundBatchExpiredOrders,
		Reason: domain.RefundReasonSystemExpiry,
		DryRun: true,
	}, domain.InitiatorAdmin, &adminID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRefund возвращает запись возврата по ID
func (h *RefundHandler) GetRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid refund ID format"})
		return
	}

	rec, err := h.service.GetRefund(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetOrderRefunds возвращает историю возвратов заказа
func (h *RefundHandler) GetOrderRefunds(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID format"})
		return
	}

	records, err := h.service.ListOrderRefunds(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

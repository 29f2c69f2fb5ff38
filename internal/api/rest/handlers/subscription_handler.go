package handlers

import (
	"net/http"
	"strings"

	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/internal/service"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler обработчик подписок фаната
type SubscriptionHandler struct {
	service *service.SubscriptionService
	log     *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(svc *service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: svc,
		log:     log,
	}
}

// CreateSubscription оформляет подписку на криэйтора
func (h *SubscriptionHandler) CreateSubscription(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	var req service.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.CreateSubscription(c.Request.Context(), fanID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Created subscription with ID: %s", sub.ID)
	c.JSON(http.StatusCreated, sub)
}

// GetSubscriptions возвращает подписки фаната, опционально по статусам
// через query-параметр status=active,paused
func (h *SubscriptionHandler) GetSubscriptions(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	var statuses []domain.SubscriptionStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.SubscriptionStatus(strings.TrimSpace(s)))
		}
	}

	subs, err := h.service.ListFanSubscriptions(c.Request.Context(), fanID, statuses)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, subs)
}

// ApplyAction применяет действие к подписке: pause, resume, cancel, reactivate
func (h *SubscriptionHandler) ApplyAction(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	var req domain.SubscriptionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.service.ApplyAction(c.Request.Context(), fanID, req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.log.Info("Applied %s to subscription %s", req.Action, sub.ID)
	c.JSON(http.StatusOK, sub)
}

// DeleteSubscription удаляет завершенную подписку из списка фаната
func (h *SubscriptionHandler) DeleteSubscription(c *gin.Context) {
	fanID, _, ok := authedUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID format"})
		return
	}

	if err := h.service.DeleteSubscription(c.Request.Context(), fanID, id); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.Status(http.StatusNoContent)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct{}

// NewHealthHandler создает новый обработчик health check
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthCheck возвращает состояние сервиса
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "OK",
		"time":   time.Now().Format(time.RFC3339),
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/clipfan/reconciliation-service/internal/api/rest/middleware"
	"github.com/clipfan/reconciliation-service/internal/domain"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// authedUser извлекает пользователя, положенного в контекст JWT middleware
func authedUser(c *gin.Context) (uuid.UUID, string, bool) {
	raw := c.GetString(string(middleware.ContextUserIDKey))
	userID, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return uuid.Nil, "", false
	}
	return userID, c.GetString(string(middleware.ContextUserEmailKey)), true
}

// respondError переводит ошибку сервисного слоя в HTTP ответ
func respondError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrCreatorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPolicyViolation),
		errors.Is(err, domain.ErrCreatorNotPayable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicate),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrPaymentRefAlreadySet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrGateway):
		log.Error("Gateway error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway is unavailable"})

	default:
		log.Error("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

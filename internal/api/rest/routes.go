package rest

import (
	"github.com/clipfan/reconciliation-service/internal/api/rest/handlers"
	"github.com/clipfan/reconciliation-service/internal/api/rest/middleware"
	"github.com/clipfan/reconciliation-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers набор обработчиков для регистрации маршрутов
type Handlers struct {
	Health       *handlers.HealthHandler
	Order        *handlers.OrderHandler
	Payment      *handlers.PaymentHandler
	Refund       *handlers.RefundHandler
	Subscription *handlers.SubscriptionHandler
	Webhook      *handlers.WebhookHandler
}

// SetupRouter настраивает маршруты и middleware
func SetupRouter(log *logger.Logger, registry *prometheus.Registry, jwtAuth *middleware.JWTMiddleware, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(gin.Recovery())

	router.GET("/health", h.Health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Вебхуки аутентифицируются подписью шлюза, не токеном
	router.POST("/webhooks/stripe", h.Webhook.HandleStripeWebhook)

	v1 := router.Group("/api/v1")

	authed := v1.Group("")
	authed.Use(jwtAuth.RequireAuth())
	{
		authed.POST("/orders", h.Order.CreateOrder)
		authed.GET("/orders", h.Order.GetOrders)
		authed.GET("/orders/:id", h.Order.GetOrder)
		authed.POST("/orders/:id/cancel", h.Order.CancelOrder)
		authed.GET("/orders/:id/cancel/preview", h.Order.PreviewCancellation)
		authed.GET("/orders/:id/refunds", h.Refund.GetOrderRefunds)

		authed.POST("/payments/intent", h.Payment.CreatePaymentIntent)
		authed.GET("/payments/:id/status", h.Payment.GetPaymentStatus)

		authed.POST("/subscriptions", h.Subscription.CreateSubscription)
		authed.GET("/subscriptions", h.Subscription.GetSubscriptions)
		authed.PATCH("/subscriptions", h.Subscription.ApplyAction)
		authed.DELETE("/subscriptions/:id", h.Subscription.DeleteSubscription)
	}

	admin := v1.Group("")
	admin.Use(jwtAuth.RequireAuth(middleware.ScopeAdmin))
	{
		admin.POST("/refunds/process", h.Refund.ProcessBatch)
		admin.GET("/refunds/process", h.Refund.ListCandidates)
		admin.GET("/refunds/:id", h.Refund.GetRefund)

		admin.PATCH("/orders/:id/status", h.Order.UpdateOrderStatus)

		admin.GET("/webhooks/events", h.Webhook.ListEvents)
	}

	return router
}

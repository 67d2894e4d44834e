// internal/app/router.go
package app

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	adminHandler "github.com/GreaZeY/bms/internal/handlers/admin"
	billingHandler "github.com/GreaZeY/bms/internal/handlers/billing"
	planHandler "github.com/GreaZeY/bms/internal/handlers/plan"
	subscriptionHandler "github.com/GreaZeY/bms/internal/handlers/subscription"
	webhookHandler "github.com/GreaZeY/bms/internal/handlers/webhook"
	"github.com/GreaZeY/bms/internal/middleware"
)

type Handlers struct {
	PlanHandler         *planHandler.PlanHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	BillingHandler      *billingHandler.BillingHandler
	WebhookHandler      *webhookHandler.WebhookHandler
	AdminHandler        *adminHandler.AdminHandler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Webhooks ====================
	// Authenticated by HMAC signature, not JWT.
	api.POST("/webhooks/gateway", h.WebhookHandler.Receive)

	// ==================== Plans ====================
	plans := api.Group("/plans")
	plans.Use(h.AuthMiddleware.Auth())
	{
		plans.GET("", h.PlanHandler.List)
		plans.GET("/:code", h.PlanHandler.Get)
	}

	// ==================== Subscriptions ====================
	subscriptions := api.Group("/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.GET("", h.SubscriptionHandler.List)
		subscriptions.POST("", h.SubscriptionHandler.Create)
		subscriptions.POST("/purchase", h.SubscriptionHandler.Purchase)
		subscriptions.GET("/:reference", h.SubscriptionHandler.Get)
		subscriptions.POST("/:reference/cancel", h.SubscriptionHandler.Cancel)
		subscriptions.POST("/:reference/reactivate", h.SubscriptionHandler.Reactivate)
		subscriptions.POST("/:reference/checkout", h.SubscriptionHandler.Checkout)
		subscriptions.POST("/:reference/checkout/verify", h.SubscriptionHandler.ConfirmCheckout)
	}

	// ==================== Invoices & Payments ====================
	billing := api.Group("")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.GET("/invoices", h.BillingHandler.ListInvoices)
		billing.GET("/invoices/:reference", h.BillingHandler.GetInvoice)
		billing.GET("/payments", h.BillingHandler.ListPayments)
		billing.GET("/payments/:reference", h.BillingHandler.GetPayment)
		billing.GET("/payments/summary", h.BillingHandler.Summary)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireAdmin())
	{
		admin.POST("/plans", h.PlanHandler.Create)
		admin.PUT("/plans/:code", h.PlanHandler.Update)

		admin.POST("/subscriptions/:reference/renew", h.SubscriptionHandler.Renew)
		admin.POST("/subscriptions/:reference/invoice", h.BillingHandler.CreateInvoice)
		admin.POST("/subscriptions/:reference/payments", h.BillingHandler.RecordPayment)

		admin.POST("/invoices/:reference/send", h.BillingHandler.MarkInvoiceSent)
		admin.POST("/invoices/:reference/cancel", h.BillingHandler.CancelInvoice)

		admin.POST("/payments/:reference/refund", h.BillingHandler.Refund)
		admin.POST("/payments/:reference/refund/complete", h.BillingHandler.CompleteRefund)

		admin.POST("/sweeps/daily", h.AdminHandler.RunDailySweep)
		admin.POST("/sweeps/monthly", h.AdminHandler.RunMonthlySweep)
		admin.GET("/reports", h.AdminHandler.ListReports)
	}

	logger.Info("routes registered")
}

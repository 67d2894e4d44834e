// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/subscription"
	"github.com/GreaZeY/bms/internal/middleware"
	"github.com/GreaZeY/bms/internal/pkg/response"
	subscriptionUsecase "github.com/GreaZeY/bms/internal/service/subscription"
)

type SubscriptionHandler struct {
	subscriptionService *subscriptionUsecase.Service
	logger              *zap.Logger
}

func NewSubscriptionHandler(subscriptionService *subscriptionUsecase.Service, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// Create starts a subscription on a plan for the authenticated customer
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req subscription.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	customerID := middleware.MustGetCustomerID(c)
	sub, err := h.subscriptionService.Create(c.Request.Context(), customerID, &req)
	if err != nil {
		h.logger.Error("subscription creation failed",
			zap.Int64("customer_id", customerID),
			zap.String("plan_code", req.PlanCode),
			zap.Error(err),
		)
		response.FromError(c, "subscription creation failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription created", sub)
}

// Purchase is the one-call flow: subscription, invoice and completed payment
func (h *SubscriptionHandler) Purchase(c *gin.Context) {
	var req subscription.PurchasePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	customerID := middleware.MustGetCustomerID(c)
	result, err := h.subscriptionService.PurchasePlan(c.Request.Context(), customerID, &req)
	if err != nil {
		h.logger.Error("plan purchase failed",
			zap.Int64("customer_id", customerID),
			zap.String("plan_code", req.PlanCode),
			zap.Error(err),
		)
		response.FromError(c, "plan purchase failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "plan purchased", result)
}

func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.subscriptionService.Get(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"))
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return
	}
	response.Success(c, http.StatusOK, "subscription retrieved", sub)
}

func (h *SubscriptionHandler) List(c *gin.Context) {
	filters := &subscription.ListFilters{
		Status: subscription.Status(c.Query("status")),
	}
	filters.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filters.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	resp, err := h.subscriptionService.List(c.Request.Context(), middleware.MustGetCustomerID(c), filters)
	if err != nil {
		response.FromError(c, "failed to list subscriptions", err)
		return
	}
	response.Success(c, http.StatusOK, "subscriptions retrieved", resp)
}

// Checkout opens a gateway order for the subscription's charge
func (h *SubscriptionHandler) Checkout(c *gin.Context) {
	order, err := h.subscriptionService.CheckoutOrder(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"))
	if err != nil {
		h.logger.Error("checkout order failed",
			zap.String("reference", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "checkout order failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "checkout order created", order)
}

// ConfirmCheckout verifies the checkout signature and records the payment
func (h *SubscriptionHandler) ConfirmCheckout(c *gin.Context) {
	var req subscription.ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	pay, err := h.subscriptionService.ConfirmCheckout(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"), &req)
	if err != nil {
		h.logger.Error("checkout confirmation failed",
			zap.String("reference", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "checkout confirmation failed", err)
		return
	}

	response.Success(c, http.StatusOK, "payment recorded", pay)
}

// Cancel stops the subscription and requests the prorated refund
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	var req subscription.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sub, err := h.subscriptionService.Cancel(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"), req.Reason)
	if err != nil {
		h.logger.Error("subscription cancellation failed",
			zap.String("reference", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "subscription cancellation failed", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", sub)
}

// Reactivate revives a cancelled subscription inside its paid period
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	sub, err := h.subscriptionService.Reactivate(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"))
	if err != nil {
		h.logger.Error("subscription reactivation failed",
			zap.String("reference", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "subscription reactivation failed", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription reactivated", sub)
}

// Renew rolls the subscription into its next cycle (admin endpoint)
func (h *SubscriptionHandler) Renew(c *gin.Context) {
	sub, err := h.subscriptionService.Renew(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.logger.Error("subscription renewal failed",
			zap.String("reference", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "subscription renewal failed", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription renewed", sub)
}

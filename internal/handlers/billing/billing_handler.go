// internal/handlers/billing/billing_handler.go
package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/middleware"
	"github.com/GreaZeY/bms/internal/pkg/response"
	"github.com/GreaZeY/bms/internal/service/reconciler"
)

// BillingHandler exposes the invoice and payment surface.
type BillingHandler struct {
	reconciler *reconciler.Service
	logger     *zap.Logger
}

func NewBillingHandler(rec *reconciler.Service, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		reconciler: rec,
		logger:     logger,
	}
}

// ========== Invoices ==========

func (h *BillingHandler) ListInvoices(c *gin.Context) {
	invoices, err := h.reconciler.InvoicesForCustomer(c.Request.Context(), middleware.MustGetCustomerID(c))
	if err != nil {
		response.FromError(c, "failed to list invoices", err)
		return
	}
	response.Success(c, http.StatusOK, "invoices retrieved", invoices)
}

func (h *BillingHandler) GetInvoice(c *gin.Context) {
	inv, err := h.reconciler.InvoiceByReference(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"))
	if err != nil {
		response.FromError(c, "invoice not found", err)
		return
	}
	response.Success(c, http.StatusOK, "invoice retrieved", inv)
}

// CreateInvoice creates the invoice for a subscription's current cycle
// (admin endpoint). A cycle that is already invoiced yields 409.
func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	inv, err := h.reconciler.CreateInvoiceByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.logger.Error("invoice creation failed",
			zap.String("subscription", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "invoice creation failed", err)
		return
	}
	response.Success(c, http.StatusCreated, "invoice created", inv)
}

// MarkInvoiceSent moves a draft invoice to sent (admin endpoint)
func (h *BillingHandler) MarkInvoiceSent(c *gin.Context) {
	inv, err := h.reconciler.MarkInvoiceSent(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.FromError(c, "failed to mark invoice sent", err)
		return
	}
	response.Success(c, http.StatusOK, "invoice marked sent", inv)
}

// CancelInvoice voids an unpaid invoice (admin endpoint)
func (h *BillingHandler) CancelInvoice(c *gin.Context) {
	inv, err := h.reconciler.CancelInvoice(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.logger.Error("invoice cancellation failed",
			zap.String("invoice", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "invoice cancellation failed", err)
		return
	}
	response.Success(c, http.StatusOK, "invoice cancelled", inv)
}

// ========== Payments ==========

func (h *BillingHandler) ListPayments(c *gin.Context) {
	payments, err := h.reconciler.PaymentsForCustomer(c.Request.Context(), middleware.MustGetCustomerID(c))
	if err != nil {
		response.FromError(c, "failed to list payments", err)
		return
	}
	response.Success(c, http.StatusOK, "payments retrieved", payments)
}

func (h *BillingHandler) GetPayment(c *gin.Context) {
	pay, err := h.reconciler.PaymentByReference(c.Request.Context(),
		middleware.MustGetCustomerID(c), middleware.IsAdmin(c), c.Param("reference"))
	if err != nil {
		response.FromError(c, "payment not found", err)
		return
	}
	response.Success(c, http.StatusOK, "payment retrieved", pay)
}

type recordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	Failed bool            `json:"failed"`
}

// RecordPayment records a manual payment outcome against a subscription
// (admin endpoint)
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	reference := c.Param("reference")
	if req.Failed {
		pay, err := h.reconciler.RecordPaymentFailureByReference(c.Request.Context(), reference, req.Method)
		if err != nil {
			response.FromError(c, "failed to record payment failure", err)
			return
		}
		response.Success(c, http.StatusCreated, "payment failure recorded", pay)
		return
	}

	pay, err := h.reconciler.RecordPaymentByReference(c.Request.Context(), reference, &reconciler.RecordPaymentInput{
		Amount: req.Amount,
		Method: req.Method,
	})
	if err != nil {
		h.logger.Error("payment recording failed",
			zap.String("subscription", reference),
			zap.Error(err),
		)
		response.FromError(c, "failed to record payment", err)
		return
	}
	response.Success(c, http.StatusCreated, "payment recorded", pay)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// Refund issues a refund against a completed payment (admin endpoint)
func (h *BillingHandler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	refund, err := h.reconciler.ProcessRefundByReference(c.Request.Context(), c.Param("reference"), req.Reason)
	if err != nil {
		h.logger.Error("refund failed",
			zap.String("payment", c.Param("reference")),
			zap.Error(err),
		)
		response.FromError(c, "refund failed", err)
		return
	}
	response.Success(c, http.StatusCreated, "refund created", refund)
}

// CompleteRefund confirms a pending refund has settled (admin endpoint)
func (h *BillingHandler) CompleteRefund(c *gin.Context) {
	refund, err := h.reconciler.CompleteRefundByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.FromError(c, "refund completion failed", err)
		return
	}
	response.Success(c, http.StatusOK, "refund completed", refund)
}

// Summary returns the caller's net paid position
func (h *BillingHandler) Summary(c *gin.Context) {
	summary, err := h.reconciler.CustomerSummary(c.Request.Context(), middleware.MustGetCustomerID(c))
	if err != nil {
		response.FromError(c, "failed to compute summary", err)
		return
	}
	response.Success(c, http.StatusOK, "summary retrieved", summary)
}

// internal/handlers/webhook/webhook_handler.go
package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/pkg/response"
	webhookUsecase "github.com/GreaZeY/bms/internal/service/webhook"
)

// signatureHeader carries the gateway's HMAC over the raw request body.
const signatureHeader = "X-Razorpay-Signature"

type WebhookHandler struct {
	webhookService *webhookUsecase.Service
	logger         *zap.Logger
}

func NewWebhookHandler(webhookService *webhookUsecase.Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		logger:         logger,
	}
}

// Receive ingests one gateway webhook delivery. The body is read raw; the
// signature must cover the exact bytes on the wire.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unreadable body", err)
		return
	}

	if err := h.webhookService.Process(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		h.logger.Warn("webhook rejected", zap.Error(err))
		response.FromError(c, "webhook rejected", err)
		return
	}

	response.Success(c, http.StatusOK, "webhook processed", nil)
}

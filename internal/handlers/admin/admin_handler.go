// internal/handlers/admin/admin_handler.go
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/pkg/response"
	sweepUsecase "github.com/GreaZeY/bms/internal/service/sweep"
)

// AdminHandler exposes manual sweep triggers and report retrieval. The
// scheduler normally drives the sweeps; these endpoints exist for operators.
type AdminHandler struct {
	sweepService *sweepUsecase.Service
	logger       *zap.Logger
}

func NewAdminHandler(sweepService *sweepUsecase.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		sweepService: sweepService,
		logger:       logger,
	}
}

func (h *AdminHandler) RunDailySweep(c *gin.Context) {
	result, err := h.sweepService.RunDaily(c.Request.Context())
	if err != nil {
		h.logger.Error("daily sweep failed", zap.Error(err))
		response.FromError(c, "daily sweep failed", err)
		return
	}
	response.Success(c, http.StatusOK, "daily sweep finished", result)
}

func (h *AdminHandler) RunMonthlySweep(c *gin.Context) {
	result, err := h.sweepService.RunMonthly(c.Request.Context())
	if err != nil {
		h.logger.Error("monthly sweep failed", zap.Error(err))
		response.FromError(c, "monthly sweep failed", err)
		return
	}
	response.Success(c, http.StatusOK, "monthly sweep finished", result)
}

func (h *AdminHandler) ListReports(c *gin.Context) {
	month := c.Query("month")
	if month == "" {
		response.Error(c, http.StatusBadRequest, "month query parameter is required", nil)
		return
	}

	reports, err := h.sweepService.Reports(c.Request.Context(), month)
	if err != nil {
		response.FromError(c, "failed to list reports", err)
		return
	}
	response.Success(c, http.StatusOK, "reports retrieved", reports)
}

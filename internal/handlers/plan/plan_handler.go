// internal/handlers/plan/plan_handler.go
package plan

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/plan"
	"github.com/GreaZeY/bms/internal/middleware"
	"github.com/GreaZeY/bms/internal/pkg/response"
	planUsecase "github.com/GreaZeY/bms/internal/service/plan"
)

type PlanHandler struct {
	planService *planUsecase.Service
	logger      *zap.Logger
}

func NewPlanHandler(planService *planUsecase.Service, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{
		planService: planService,
		logger:      logger,
	}
}

// List returns the plans the caller may subscribe to. Admins see everything.
func (h *PlanHandler) List(c *gin.Context) {
	var (
		plans []plan.Plan
		err   error
	)
	if middleware.IsAdmin(c) {
		plans, err = h.planService.ListAll(c.Request.Context())
	} else {
		plans, err = h.planService.ListForCustomer(c.Request.Context(), middleware.MustGetCustomerID(c))
	}
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}
	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

func (h *PlanHandler) Get(c *gin.Context) {
	p, err := h.planService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, "plan not found", err)
		return
	}
	response.Success(c, http.StatusOK, "plan retrieved", p)
}

// Create registers a new plan (admin endpoint)
func (h *PlanHandler) Create(c *gin.Context) {
	var req plan.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.planService.Create(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("plan creation failed",
			zap.String("code", req.Code),
			zap.Error(err),
		)
		response.FromError(c, "plan creation failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "plan created", p)
}

// Update edits a plan, optionally propagating price and cycle changes to its
// active subscriptions (admin endpoint)
func (h *PlanHandler) Update(c *gin.Context) {
	var req plan.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.planService.Update(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		h.logger.Error("plan update failed",
			zap.String("code", c.Param("code")),
			zap.Error(err),
		)
		response.FromError(c, "plan update failed", err)
		return
	}

	response.Success(c, http.StatusOK, "plan updated", p)
}

// Package plan manages the plan catalog: admin CRUD plus the availability
// rules that decide which plans a customer may see and subscribe to.
package plan

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/plan"
	"github.com/GreaZeY/bms/internal/pkg/cycle"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	subscriptionsvc "github.com/GreaZeY/bms/internal/service/subscription"
)

type Service struct {
	planRepo      plan.Repository
	subscriptions *subscriptionsvc.Service
	logger        *zap.Logger
}

func NewService(planRepo plan.Repository, subscriptions *subscriptionsvc.Service, logger *zap.Logger) *Service {
	return &Service{planRepo: planRepo, subscriptions: subscriptions, logger: logger}
}

func (s *Service) Create(ctx context.Context, req *plan.CreatePlanRequest) (*plan.Plan, error) {
	bc := cycle.Cycle(req.BillingCycle)
	if !bc.Valid() {
		return nil, fmt.Errorf("unknown billing cycle %q: %w", req.BillingCycle, xerrors.ErrInvalidInput)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %w", xerrors.ErrInvalidInput)
	}
	if _, err := s.planRepo.FindByCode(ctx, req.Code); err == nil {
		return nil, fmt.Errorf("plan code %s: %w", req.Code, xerrors.ErrDuplicateEntry)
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	p := &plan.Plan{
		Code:         req.Code,
		Name:         req.Name,
		Price:        req.Price,
		Currency:     req.Currency,
		BillingCycle: bc,
		TrialDays:    req.TrialDays,
		AutoRenew:    true,
		Visibility:   plan.VisibilityAll,
		IsActive:     true,
	}
	if req.Currency == "" {
		p.Currency = "INR"
	}
	if req.Description != "" {
		p.Description = sql.NullString{String: req.Description, Valid: true}
	}
	if req.AutoRenew != nil {
		p.AutoRenew = *req.AutoRenew
	}
	if req.Visibility != "" {
		p.Visibility = plan.Visibility(req.Visibility)
	}
	if p.Visibility != plan.VisibilityAll && p.Visibility != plan.VisibilitySelected {
		return nil, fmt.Errorf("unknown visibility %q: %w", req.Visibility, xerrors.ErrInvalidInput)
	}

	if err := s.planRepo.Create(ctx, p, req.AllowedCustomerIDs); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	s.logger.Info("plan created",
		zap.String("code", p.Code),
		zap.String("price", p.Price.String()),
		zap.String("billing_cycle", string(p.BillingCycle)),
	)
	return p, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*plan.Plan, error) {
	return s.planRepo.FindByCode(ctx, code)
}

// ListForCustomer returns the active plans the customer may subscribe to.
func (s *Service) ListForCustomer(ctx context.Context, customerID int64) ([]plan.Plan, error) {
	return s.planRepo.List(ctx, &plan.ListFilters{ActiveOnly: true, CustomerID: customerID})
}

// ListAll returns every plan, for admin use.
func (s *Service) ListAll(ctx context.Context) ([]plan.Plan, error) {
	return s.planRepo.List(ctx, nil)
}

// Update applies a partial edit. With PropagateToActive set, the new price
// and cycle are also written onto the plan's active subscriptions; already
// cancelled or expired ones keep their old snapshot.
func (s *Service) Update(ctx context.Context, code string, req *plan.UpdatePlanRequest) (*plan.Plan, error) {
	p, err := s.planRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = sql.NullString{String: *req.Description, Valid: *req.Description != ""}
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("price cannot be negative: %w", xerrors.ErrInvalidInput)
		}
		p.Price = *req.Price
	}
	if req.BillingCycle != nil {
		bc := cycle.Cycle(*req.BillingCycle)
		if !bc.Valid() {
			return nil, fmt.Errorf("unknown billing cycle %q: %w", *req.BillingCycle, xerrors.ErrInvalidInput)
		}
		p.BillingCycle = bc
	}
	if req.Visibility != nil {
		v := plan.Visibility(*req.Visibility)
		if v != plan.VisibilityAll && v != plan.VisibilitySelected {
			return nil, fmt.Errorf("unknown visibility %q: %w", *req.Visibility, xerrors.ErrInvalidInput)
		}
		p.Visibility = v
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.planRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	if req.AllowedCustomerIDs != nil {
		if err := s.planRepo.ReplaceAllowedCustomers(ctx, p.ID, req.AllowedCustomerIDs); err != nil {
			return nil, err
		}
	}

	if req.PropagateToActive {
		updated, err := s.subscriptions.PropagatePlanChange(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("plan updated but propagation incomplete: %w", err)
		}
		s.logger.Info("plan change propagated",
			zap.String("code", p.Code),
			zap.Int("subscriptions", updated),
		)
	}

	s.logger.Info("plan updated", zap.String("code", p.Code))
	return p, nil
}

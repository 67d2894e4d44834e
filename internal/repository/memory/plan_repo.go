package memory

import (
	"context"
	"time"

	"github.com/GreaZeY/bms/internal/domain/plan"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type PlanRepository struct {
	store
	plans   map[int64]*plan.Plan
	allowed map[int64][]int64
}

func NewPlanRepository() *PlanRepository {
	return &PlanRepository{
		plans:   make(map[int64]*plan.Plan),
		allowed: make(map[int64][]int64),
	}
}

func (r *PlanRepository) Create(_ context.Context, p *plan.Plan, allowedCustomerIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.ID = r.id()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	r.plans[p.ID] = &cp
	r.allowed[p.ID] = append([]int64(nil), allowedCustomerIDs...)
	return nil
}

func (r *PlanRepository) FindByID(_ context.Context, id int64) (*plan.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plans[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PlanRepository) FindByCode(_ context.Context, code string) (*plan.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.plans {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *PlanRepository) List(_ context.Context, filters *plan.ListFilters) ([]plan.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []plan.Plan
	for _, p := range r.plans {
		if filters != nil && filters.ActiveOnly && !p.IsActive {
			continue
		}
		if filters != nil && filters.CustomerID > 0 &&
			!p.AvailableFor(filters.CustomerID, r.allowed[p.ID]) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *PlanRepository) Update(_ context.Context, p *plan.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plans[p.ID]; !ok {
		return xerrors.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	r.plans[p.ID] = &cp
	return nil
}

func (r *PlanRepository) AllowedCustomerIDs(_ context.Context, planID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.allowed[planID]...), nil
}

func (r *PlanRepository) ReplaceAllowedCustomers(_ context.Context, planID int64, customerIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[planID] = append([]int64(nil), customerIDs...)
	return nil
}

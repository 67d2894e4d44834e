package memory

import (
	"context"
	"time"

	"github.com/GreaZeY/bms/internal/domain/subscription"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type SubscriptionRepository struct {
	store
	subs map[int64]*subscription.Subscription
}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{subs: make(map[int64]*subscription.Subscription)}
}

func (r *SubscriptionRepository) Create(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.ID = r.id()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *SubscriptionRepository) FindByID(_ context.Context, id int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SubscriptionRepository) FindByReference(_ context.Context, reference string) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.Reference == reference {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *SubscriptionRepository) FindByGatewayID(_ context.Context, gatewayID string) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.GatewaySubscriptionID.Valid && s.GatewaySubscriptionID.String == gatewayID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *SubscriptionRepository) FindLiveByCustomerAndPlan(_ context.Context, customerID, planID int64) (*subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.CustomerID == customerID && s.PlanID == planID &&
			(s.Status == subscription.StatusTrial || s.Status == subscription.StatusActive) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *SubscriptionRepository) Update(_ context.Context, s *subscription.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[s.ID]; !ok {
		return xerrors.ErrNotFound
	}
	s.UpdatedAt = time.Now()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *SubscriptionRepository) ListByCustomer(_ context.Context, customerID int64, filters *subscription.ListFilters) ([]subscription.Subscription, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []subscription.Subscription
	for _, s := range r.subs {
		if s.CustomerID != customerID {
			continue
		}
		if filters != nil && filters.Status != "" && s.Status != filters.Status {
			continue
		}
		if filters != nil && filters.PlanID > 0 && s.PlanID != filters.PlanID {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *SubscriptionRepository) ListActiveByPlan(_ context.Context, planID int64) ([]subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []subscription.Subscription
	for _, s := range r.subs {
		if s.PlanID == planID && s.Status == subscription.StatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *SubscriptionRepository) ListExpiredActive(_ context.Context, asOf time.Time) ([]subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []subscription.Subscription
	for _, s := range r.subs {
		if s.Status == subscription.StatusActive && s.EndDate.Before(asOf) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *SubscriptionRepository) ListDueForBilling(_ context.Context, asOf time.Time) ([]subscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []subscription.Subscription
	for _, s := range r.subs {
		if s.Status == subscription.StatusActive && s.AutoRenew &&
			s.NextBillingDate.Valid && !s.NextBillingDate.Time.After(asOf) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *SubscriptionRepository) CountByStatus(_ context.Context) (*subscription.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := &subscription.Counts{}
	for _, s := range r.subs {
		counts.Total++
		switch s.Status {
		case subscription.StatusActive:
			counts.Active++
		case subscription.StatusCancelled:
			counts.Cancelled++
		}
	}
	return counts, nil
}

func (r *SubscriptionRepository) DeleteCancelledBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.subs {
		if s.Status == subscription.StatusCancelled && s.CancelledAt.Valid && s.CancelledAt.Time.Before(cutoff) {
			delete(r.subs, id)
			deleted++
		}
	}
	return deleted, nil
}

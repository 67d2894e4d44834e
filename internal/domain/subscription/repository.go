package subscription

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	FindByID(ctx context.Context, id int64) (*Subscription, error)
	FindByReference(ctx context.Context, reference string) (*Subscription, error)
	FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error

	ListByCustomer(ctx context.Context, customerID int64, filters *ListFilters) ([]Subscription, int64, error)
	ListActiveByPlan(ctx context.Context, planID int64) ([]Subscription, error)

	// FindLiveByCustomerAndPlan returns a Trial or Active subscription for
	// the (customer, plan) pair, or ErrNotFound.
	FindLiveByCustomerAndPlan(ctx context.Context, customerID, planID int64) (*Subscription, error)

	// Sweep queries.
	ListExpiredActive(ctx context.Context, asOf time.Time) ([]Subscription, error)
	ListDueForBilling(ctx context.Context, asOf time.Time) ([]Subscription, error)
	CountByStatus(ctx context.Context) (*Counts, error)
	DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

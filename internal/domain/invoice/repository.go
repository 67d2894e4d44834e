package invoice

import (
	"context"
	"time"
)

type Repository interface {
	// CreateIfAbsent atomically creates inv unless a non-cancelled invoice
	// already exists for (subscription, period start). It returns the stored
	// invoice and whether this call created it.
	CreateIfAbsent(ctx context.Context, inv *Invoice) (*Invoice, bool, error)

	FindByID(ctx context.Context, id int64) (*Invoice, error)
	FindByReference(ctx context.Context, reference string) (*Invoice, error)
	FindOpenByCycle(ctx context.Context, subscriptionID int64, periodStart time.Time) (*Invoice, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error)
	ListPastDue(ctx context.Context, asOf time.Time) ([]Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
}

package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error

	// CreateIfAbsent atomically creates p unless a payment with the same
	// gateway payment id already exists. It returns the stored payment and
	// whether this call created it. Payments without a gateway id are always
	// created.
	CreateIfAbsent(ctx context.Context, p *Payment) (*Payment, bool, error)

	FindByID(ctx context.Context, id int64) (*Payment, error)
	FindByReference(ctx context.Context, reference string) (*Payment, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error

	ListByCustomer(ctx context.Context, customerID int64) ([]Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]Payment, error)

	// SummarizeSubscription sums completed payments and completed refunds for
	// the subscription; the refund invariant is checked against its Net.
	SummarizeSubscription(ctx context.Context, subscriptionID int64) (*Summary, error)
	SummarizeCustomer(ctx context.Context, customerID int64) (*Summary, error)

	// SumCompletedByInvoice totals completed payment amounts linked to the
	// invoice, used to decide when it is fully paid.
	SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error)

	// RevenueBetween totals completed payment amounts in [from, to).
	RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

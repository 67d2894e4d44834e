package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GreaZeY/bms/internal/domain/payment"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type PaymentRepository struct {
	store
	payments map[int64]*payment.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{payments: make(map[int64]*payment.Payment)}
}

func (r *PaymentRepository) Create(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(p)
	return nil
}

func (r *PaymentRepository) CreateIfAbsent(_ context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.GatewayPaymentID.Valid {
		for _, existing := range r.payments {
			if existing.GatewayPaymentID.Valid &&
				existing.GatewayPaymentID.String == p.GatewayPaymentID.String {
				cp := *existing
				return &cp, false, nil
			}
		}
	}
	r.insert(p)
	return p, true, nil
}

func (r *PaymentRepository) insert(p *payment.Payment) {
	p.ID = r.id()
	p.CreatedAt = time.Now()
	cp := *p
	r.payments[p.ID] = &cp
}

func (r *PaymentRepository) FindByID(_ context.Context, id int64) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PaymentRepository) FindByReference(_ context.Context, reference string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *PaymentRepository) FindByGatewayPaymentID(_ context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.GatewayPaymentID.Valid && p.GatewayPaymentID.String == gatewayPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *PaymentRepository) Update(_ context.Context, p *payment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; !ok {
		return xerrors.ErrNotFound
	}
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *PaymentRepository) ListByCustomer(_ context.Context, customerID int64) ([]payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []payment.Payment
	for _, p := range r.payments {
		if p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *PaymentRepository) ListBySubscription(_ context.Context, subscriptionID int64) ([]payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []payment.Payment
	for _, p := range r.payments {
		if p.SubscriptionID == subscriptionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *PaymentRepository) SummarizeSubscription(_ context.Context, subscriptionID int64) (*payment.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summarize(func(p *payment.Payment) bool { return p.SubscriptionID == subscriptionID }), nil
}

func (r *PaymentRepository) SummarizeCustomer(_ context.Context, customerID int64) (*payment.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summarize(func(p *payment.Payment) bool { return p.CustomerID == customerID }), nil
}

func (r *PaymentRepository) summarize(match func(*payment.Payment) bool) *payment.Summary {
	s := &payment.Summary{TotalPaid: decimal.Zero, TotalRefunded: decimal.Zero}
	for _, p := range r.payments {
		if !match(p) {
			continue
		}
		switch {
		case p.Type == payment.TypePayment && (p.Status == payment.StatusCompleted || p.Status == payment.StatusRefunded):
			s.TotalPaid = s.TotalPaid.Add(p.Amount)
		case p.Type == payment.TypeRefund && p.Status == payment.StatusCompleted:
			s.TotalRefunded = s.TotalRefunded.Add(p.Amount.Neg())
		}
	}
	s.Net = s.TotalPaid.Sub(s.TotalRefunded)
	return s
}

func (r *PaymentRepository) SumCompletedByInvoice(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := decimal.Zero
	for _, p := range r.payments {
		if p.InvoiceID.Valid && p.InvoiceID.Int64 == invoiceID &&
			p.Type == payment.TypePayment &&
			(p.Status == payment.StatusCompleted || p.Status == payment.StatusRefunded) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (r *PaymentRepository) RevenueBetween(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := decimal.Zero
	for _, p := range r.payments {
		if p.Type == payment.TypePayment &&
			(p.Status == payment.StatusCompleted || p.Status == payment.StatusRefunded) &&
			!p.PaymentDate.Before(from) && p.PaymentDate.Before(to) {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

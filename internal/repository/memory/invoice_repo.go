package memory

import (
	"context"
	"time"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type InvoiceRepository struct {
	store
	invoices map[int64]*invoice.Invoice
}

func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{invoices: make(map[int64]*invoice.Invoice)}
}

func (r *InvoiceRepository) CreateIfAbsent(_ context.Context, inv *invoice.Invoice) (*invoice.Invoice, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.invoices {
		if existing.SubscriptionID == inv.SubscriptionID &&
			existing.PeriodStart.Equal(inv.PeriodStart) &&
			existing.Status != invoice.StatusCancelled {
			cp := *existing
			return &cp, false, nil
		}
	}

	inv.ID = r.id()
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	for i := range inv.Items {
		inv.Items[i].ID = r.id()
		inv.Items[i].InvoiceID = inv.ID
	}
	cp := *inv
	r.invoices[inv.ID] = &cp
	return inv, true, nil
}

func (r *InvoiceRepository) FindByID(_ context.Context, id int64) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *InvoiceRepository) FindByReference(_ context.Context, reference string) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inv := range r.invoices {
		if inv.Reference == reference {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *InvoiceRepository) FindOpenByCycle(_ context.Context, subscriptionID int64, periodStart time.Time) (*invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inv := range r.invoices {
		if inv.SubscriptionID == subscriptionID &&
			inv.PeriodStart.Equal(periodStart) &&
			inv.Status != invoice.StatusCancelled {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *InvoiceRepository) ListByCustomer(_ context.Context, customerID int64) ([]invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []invoice.Invoice
	for _, inv := range r.invoices {
		if inv.CustomerID == customerID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *InvoiceRepository) ListPastDue(_ context.Context, asOf time.Time) ([]invoice.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []invoice.Invoice
	for _, inv := range r.invoices {
		if (inv.Status == invoice.StatusDraft || inv.Status == invoice.StatusSent) &&
			inv.DueDate.Before(asOf) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (r *InvoiceRepository) Update(_ context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.invoices[inv.ID]; !ok {
		return xerrors.ErrNotFound
	}
	inv.UpdatedAt = time.Now()
	cp := *inv
	r.invoices[inv.ID] = &cp
	return nil
}

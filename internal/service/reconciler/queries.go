package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	"github.com/GreaZeY/bms/internal/domain/payment"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

func (s *Service) Invoice(ctx context.Context, id int64) (*invoice.Invoice, error) {
	return s.invoiceRepo.FindByID(ctx, id)
}

// CreateInvoiceByReference is CreateInvoiceForCycle keyed by the
// subscription's public reference.
func (s *Service) CreateInvoiceByReference(ctx context.Context, reference string) (*invoice.Invoice, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.CreateInvoiceForCycle(ctx, sub.ID)
}

// RecordPaymentByReference is RecordPayment keyed by the subscription's
// public reference.
func (s *Service) RecordPaymentByReference(ctx context.Context, reference string, in *RecordPaymentInput) (*payment.Payment, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	in.SubscriptionID = sub.ID
	return s.RecordPayment(ctx, in)
}

// RecordPaymentFailureByReference is RecordPaymentFailure keyed by the
// subscription's public reference.
func (s *Service) RecordPaymentFailureByReference(ctx context.Context, reference, method string) (*payment.Payment, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.RecordPaymentFailure(ctx, sub.ID, method)
}

// ProcessRefundByReference is ProcessRefund keyed by the payment's public
// reference.
func (s *Service) ProcessRefundByReference(ctx context.Context, reference, reason string) (*payment.Payment, error) {
	pay, err := s.paymentRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.ProcessRefund(ctx, pay.ID, reason)
}

// CompleteRefundByReference is CompleteRefund keyed by the refund's public
// reference.
func (s *Service) CompleteRefundByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	pay, err := s.paymentRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.CompleteRefund(ctx, pay.ID)
}

// MarkInvoiceSent moves a draft invoice to sent.
func (s *Service) MarkInvoiceSent(ctx context.Context, reference string) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusDraft {
		return nil, fmt.Errorf("%w: cannot send %s invoice %s", xerrors.ErrInvalidState, inv.Status, inv.Reference)
	}
	inv.Status = invoice.StatusSent
	if err := s.invoiceRepo.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("mark invoice sent: %w", err)
	}
	return inv, nil
}

// CancelInvoice voids an unpaid invoice. Cancelling frees the billing cycle's
// natural key, so a replacement invoice for the same period can be created.
func (s *Service) CancelInvoice(ctx context.Context, reference string) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !inv.Open() {
		return nil, fmt.Errorf("%w: cannot cancel %s invoice %s", xerrors.ErrInvalidState, inv.Status, inv.Reference)
	}
	inv.Status = invoice.StatusCancelled
	if err := s.invoiceRepo.Update(ctx, inv); err != nil {
		return nil, fmt.Errorf("cancel invoice: %w", err)
	}
	s.logger.Info("invoice cancelled", zap.String("invoice", inv.Reference))
	return inv, nil
}

// InvoiceByReference returns the invoice after an ownership check.
func (s *Service) InvoiceByReference(ctx context.Context, callerID int64, isAdmin bool, reference string) (*invoice.Invoice, error) {
	inv, err := s.invoiceRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !isAdmin && inv.CustomerID != callerID {
		return nil, xerrors.ErrForbidden
	}
	return inv, nil
}

func (s *Service) InvoicesForCustomer(ctx context.Context, customerID int64) ([]invoice.Invoice, error) {
	return s.invoiceRepo.ListByCustomer(ctx, customerID)
}

// PaymentByReference returns the payment after an ownership check.
func (s *Service) PaymentByReference(ctx context.Context, callerID int64, isAdmin bool, reference string) (*payment.Payment, error) {
	pay, err := s.paymentRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !isAdmin && pay.CustomerID != callerID {
		return nil, xerrors.ErrForbidden
	}
	return pay, nil
}

func (s *Service) PaymentsForCustomer(ctx context.Context, customerID int64) ([]payment.Payment, error) {
	return s.paymentRepo.ListByCustomer(ctx, customerID)
}

func (s *Service) PaymentsForSubscription(ctx context.Context, subscriptionID int64) ([]payment.Payment, error) {
	return s.paymentRepo.ListBySubscription(ctx, subscriptionID)
}

// Revenue totals completed payments in the half-open date window.
func (s *Service) Revenue(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return s.paymentRepo.RevenueBetween(ctx, from, to)
}

// CustomerSummary totals a customer's completed payments net of refunds.
func (s *Service) CustomerSummary(ctx context.Context, customerID int64) (*payment.Summary, error) {
	return s.paymentRepo.SummarizeCustomer(ctx, customerID)
}

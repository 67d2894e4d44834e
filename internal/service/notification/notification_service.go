// Package notification sends customer-facing billing emails. Delivery is
// best effort: failures are logged, never propagated into billing flows.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/customer"
	"github.com/GreaZeY/bms/internal/domain/invoice"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(to, subject, bodyHTML string) error
}

type Service struct {
	sender       Sender
	customerRepo customer.Repository
	logger       *zap.Logger
}

func NewService(sender Sender, customerRepo customer.Repository, logger *zap.Logger) *Service {
	return &Service{sender: sender, customerRepo: customerRepo, logger: logger}
}

// InvoiceOverdue notifies the invoice's customer that payment is past due.
func (s *Service) InvoiceOverdue(ctx context.Context, inv *invoice.Invoice) {
	cust, err := s.customerRepo.FindByID(ctx, inv.CustomerID)
	if err != nil {
		s.logger.Warn("cannot notify overdue invoice, customer not found",
			zap.String("invoice", inv.Reference), zap.Error(err))
		return
	}

	subject := fmt.Sprintf("Invoice %s is overdue", inv.Reference)
	body := fmt.Sprintf(
		`<p>Hi %s,</p>
		<p>Your invoice <b>%s</b> for <b>%s %s</b> was due on %s and is still unpaid.</p>
		<p>Please settle it to keep your subscription active.</p>`,
		cust.Name, inv.Reference, inv.Amount.StringFixed(2), inv.Currency,
		inv.DueDate.Format("02 Jan 2006"),
	)

	go func() {
		if err := s.sender.Send(cust.Email, subject, body); err != nil {
			s.logger.Error("failed to send overdue notice",
				zap.String("invoice", inv.Reference),
				zap.String("email", cust.Email),
				zap.Error(err),
			)
		}
	}()
}

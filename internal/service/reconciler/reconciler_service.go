// Package reconciler owns invoices and payments: it creates invoices per
// billing cycle, attaches payments, decides when an invoice is paid and feeds
// payment outcomes back into the subscription status.
package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	"github.com/GreaZeY/bms/internal/domain/payment"
	"github.com/GreaZeY/bms/internal/domain/subscription"
	"github.com/GreaZeY/bms/internal/pkg/cycle"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/pkg/ref"
)

type Service struct {
	subscriptionRepo subscription.Repository
	invoiceRepo      invoice.Repository
	paymentRepo      payment.Repository
	locks            *keylock.KeyLock
	logger           *zap.Logger

	now func() time.Time
}

func NewService(
	subscriptionRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	locks *keylock.KeyLock,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscriptionRepo: subscriptionRepo,
		invoiceRepo:      invoiceRepo,
		paymentRepo:      paymentRepo,
		locks:            locks,
		logger:           logger,
		now:              time.Now,
	}
}

// RecordPaymentInput describes a completed charge to absorb. Amount zero
// defaults to the subscription's snapshot amount. Gateway identifiers, when
// present, are the natural key that deduplicates redelivered events.
type RecordPaymentInput struct {
	SubscriptionID   int64
	Amount           decimal.Decimal
	Method           string
	GatewayPaymentID string
	GatewayOrderID   string
}

// CreateInvoiceForCycle creates the invoice for the subscription's current
// billing cycle on behalf of an explicit external request. A cycle that is
// already invoiced fails with ErrDuplicateInvoice.
func (s *Service) CreateInvoiceForCycle(ctx context.Context, subscriptionID int64) (*invoice.Invoice, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	inv, created, err := s.EnsureInvoiceForCycle(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("invoice %s: %w", inv.Reference, xerrors.ErrDuplicateInvoice)
	}
	return inv, nil
}

// EnsureInvoiceForCycle creates the current cycle's invoice if it does not
// exist and returns the stored one either way. Retried and concurrent calls
// for the same cycle are safe: the natural key (subscription, period start)
// admits one non-cancelled invoice.
func (s *Service) EnsureInvoiceForCycle(ctx context.Context, sub *subscription.Subscription) (*invoice.Invoice, bool, error) {
	today := s.today()

	inv := &invoice.Invoice{
		Reference:      ref.Invoice(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		InvoiceDate:    today,
		DueDate:        s.dueDate(sub, today),
		PeriodStart:    sub.StartDate,
		Status:         invoice.StatusDraft,
		Items: []invoice.Item{{
			Name:     fmt.Sprintf("Subscription - %s", sub.PlanName),
			Quantity: 1,
			Rate:     sub.Amount,
			Amount:   sub.Amount,
		}},
	}

	stored, created, err := s.invoiceRepo.CreateIfAbsent(ctx, inv)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}
	if created {
		s.logger.Info("invoice created",
			zap.String("invoice", stored.Reference),
			zap.String("subscription", sub.Reference),
			zap.Time("period_start", stored.PeriodStart),
		)
	}
	return stored, created, nil
}

// RecordPayment absorbs a completed charge: it stores the payment, activates
// trial subscriptions, lifts suspensions and settles the cycle's invoice once
// linked payments cover its amount.
func (s *Service) RecordPayment(ctx context.Context, in *RecordPaymentInput) (*payment.Payment, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, in.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	amount := in.Amount
	if amount.IsZero() {
		amount = sub.Amount
	}
	method := in.Method
	if method == "" {
		method = "credit_card"
	}

	pay := &payment.Payment{
		Reference:      ref.Payment(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Type:           payment.TypePayment,
		Amount:         amount,
		Currency:       sub.Currency,
		Status:         payment.StatusCompleted,
		Method:         method,
		PaymentDate:    s.today(),
	}
	if in.GatewayPaymentID != "" {
		pay.GatewayPaymentID = sql.NullString{String: in.GatewayPaymentID, Valid: true}
	}
	if in.GatewayOrderID != "" {
		pay.GatewayOrderID = sql.NullString{String: in.GatewayOrderID, Valid: true}
	}

	stored, created, err := s.paymentRepo.CreateIfAbsent(ctx, pay)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if !created {
		// Redelivered gateway event; the first delivery did the work.
		s.logger.Info("duplicate payment ignored",
			zap.String("payment", stored.Reference),
			zap.String("gateway_payment_id", in.GatewayPaymentID),
		)
		return stored, nil
	}

	if err := s.applyPaymentToSubscription(ctx, sub); err != nil {
		return nil, err
	}
	if err := s.settleInvoice(ctx, sub, stored); err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		zap.String("payment", stored.Reference),
		zap.String("subscription", sub.Reference),
		zap.String("amount", stored.Amount.String()),
	)
	return stored, nil
}

// RecordPaymentFailure stores a failed charge attempt and suspends an active
// subscription until a later payment completes.
func (s *Service) RecordPaymentFailure(ctx context.Context, subscriptionID int64, method string) (*payment.Payment, error) {
	sub, err := s.subscriptionRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	if method == "" {
		method = "credit_card"
	}
	pay := &payment.Payment{
		Reference:      ref.Payment(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Type:           payment.TypePayment,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Status:         payment.StatusFailed,
		Method:         method,
		PaymentDate:    s.today(),
	}
	if err := s.paymentRepo.Create(ctx, pay); err != nil {
		return nil, fmt.Errorf("failed to record payment failure: %w", err)
	}

	if sub.Status == subscription.StatusActive {
		if err := sub.Transition(subscription.StatusSuspended); err != nil {
			return nil, err
		}
		if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to suspend subscription: %w", err)
		}
		s.logger.Warn("subscription suspended after payment failure",
			zap.String("subscription", sub.Reference),
		)
	}
	return pay, nil
}

// ProcessRefund issues a refund against a completed payment: a negative
// pending refund record linked to the source, which is marked refunded.
// Completion of the refund is a separate explicit step (CompleteRefund).
func (s *Service) ProcessRefund(ctx context.Context, paymentID int64, reason string) (*payment.Payment, error) {
	source, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("payment not found: %w", err)
	}
	if !source.Refundable() {
		return nil, fmt.Errorf("payment %s: %w", source.Reference, xerrors.ErrNotRefundable)
	}

	sub, err := s.subscriptionRepo.FindByID(ctx, source.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("subscription not found: %w", err)
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	summary, err := s.paymentRepo.SummarizeSubscription(ctx, source.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if source.Amount.GreaterThan(summary.Net) {
		return nil, fmt.Errorf("refund %s exceeds net paid %s: %w",
			source.Amount.String(), summary.Net.String(), xerrors.ErrRefundExceedsBalance)
	}

	refund := &payment.Payment{
		Reference:       ref.Payment(),
		CustomerID:      source.CustomerID,
		SubscriptionID:  source.SubscriptionID,
		InvoiceID:       source.InvoiceID,
		Type:            payment.TypeRefund,
		Amount:          source.Amount.Neg(),
		Currency:        source.Currency,
		Status:          payment.StatusPending,
		Method:          source.Method,
		SourcePaymentID: sql.NullInt64{Int64: source.ID, Valid: true},
		PaymentDate:     s.today(),
	}
	if reason != "" {
		refund.RefundReason = sql.NullString{String: reason, Valid: true}
	}
	if err := s.paymentRepo.Create(ctx, refund); err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	source.Status = payment.StatusRefunded
	source.RefundedAt = sql.NullTime{Time: s.today(), Valid: true}
	if err := s.paymentRepo.Update(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to mark payment refunded: %w", err)
	}

	s.logger.Info("refund created",
		zap.String("refund", refund.Reference),
		zap.String("source_payment", source.Reference),
		zap.String("amount", refund.Amount.String()),
	)
	return refund, nil
}

// CompleteRefund confirms that a pending refund has settled at the gateway.
func (s *Service) CompleteRefund(ctx context.Context, refundID int64) (*payment.Payment, error) {
	refund, err := s.paymentRepo.FindByID(ctx, refundID)
	if err != nil {
		return nil, fmt.Errorf("refund not found: %w", err)
	}
	if refund.Type != payment.TypeRefund || refund.Status != payment.StatusPending {
		return nil, fmt.Errorf("payment %s is not a pending refund: %w", refund.Reference, xerrors.ErrInvalidState)
	}

	refund.Status = payment.StatusCompleted
	if err := s.paymentRepo.Update(ctx, refund); err != nil {
		return nil, fmt.Errorf("failed to complete refund: %w", err)
	}

	sub, err := s.subscriptionRepo.FindByID(ctx, refund.SubscriptionID)
	if err == nil && sub.RefundStatus.Valid && sub.RefundStatus.String == string(subscription.RefundRequested) {
		s.locks.Lock(sub.Reference)
		sub.RefundStatus = sql.NullString{String: string(subscription.RefundCompleted), Valid: true}
		if uerr := s.subscriptionRepo.Update(ctx, sub); uerr != nil {
			s.logger.Warn("failed to update subscription refund status",
				zap.String("subscription", sub.Reference), zap.Error(uerr))
		}
		s.locks.Unlock(sub.Reference)
	}

	s.logger.Info("refund completed", zap.String("refund", refund.Reference))
	return refund, nil
}

// applyPaymentToSubscription activates trials and lifts suspensions on a
// completed payment; both transitions recompute the next billing date.
func (s *Service) applyPaymentToSubscription(ctx context.Context, sub *subscription.Subscription) error {
	switch sub.Status {
	case subscription.StatusTrial, subscription.StatusSuspended:
		if err := sub.Transition(subscription.StatusActive); err != nil {
			return err
		}
		next := cycle.NextBillingDate(sub.EndDate, sub.BillingCycle)
		sub.NextBillingDate = sql.NullTime{Time: next, Valid: sub.BillingCycle != cycle.OneTime}
		if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
			return fmt.Errorf("failed to activate subscription: %w", err)
		}
		s.logger.Info("subscription activated by payment",
			zap.String("subscription", sub.Reference),
		)
	}
	return nil
}

// settleInvoice links the payment to the current cycle's open invoice and
// marks the invoice paid once linked completed payments cover it.
func (s *Service) settleInvoice(ctx context.Context, sub *subscription.Subscription, pay *payment.Payment) error {
	inv, err := s.invoiceRepo.FindOpenByCycle(ctx, sub.ID, sub.StartDate)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if !inv.Open() {
		return nil
	}

	if !pay.InvoiceID.Valid {
		pay.InvoiceID = sql.NullInt64{Int64: inv.ID, Valid: true}
		if err := s.paymentRepo.Update(ctx, pay); err != nil {
			return fmt.Errorf("failed to link payment to invoice: %w", err)
		}
	}

	paid, err := s.paymentRepo.SumCompletedByInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	if paid.GreaterThanOrEqual(inv.Amount) {
		inv.Status = invoice.StatusPaid
		if err := s.invoiceRepo.Update(ctx, inv); err != nil {
			return fmt.Errorf("failed to mark invoice paid: %w", err)
		}
		s.logger.Info("invoice paid",
			zap.String("invoice", inv.Reference),
			zap.String("subscription", sub.Reference),
		)
	}
	return nil
}

func (s *Service) dueDate(sub *subscription.Subscription, today time.Time) time.Time {
	// Due on the cycle's start date, but never before the invoice date.
	if sub.StartDate.Before(today) {
		return today
	}
	return sub.StartDate
}

func (s *Service) today() time.Time {
	t := s.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

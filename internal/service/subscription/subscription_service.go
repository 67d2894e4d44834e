// Package subscription orchestrates the subscription lifecycle: creation,
// purchase, cancellation with prorated refunds, reactivation, renewal and
// mirroring of gateway-side lifecycle changes.
package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/customer"
	"github.com/GreaZeY/bms/internal/domain/invoice"
	"github.com/GreaZeY/bms/internal/domain/payment"
	"github.com/GreaZeY/bms/internal/domain/plan"
	"github.com/GreaZeY/bms/internal/domain/subscription"
	"github.com/GreaZeY/bms/internal/gateway"
	"github.com/GreaZeY/bms/internal/pkg/cycle"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/pkg/proration"
	"github.com/GreaZeY/bms/internal/pkg/ref"
	"github.com/GreaZeY/bms/internal/service/reconciler"
)

type Service struct {
	subscriptionRepo subscription.Repository
	planRepo         plan.Repository
	customerRepo     customer.Repository
	paymentRepo      payment.Repository
	reconciler       *reconciler.Service
	gateway          gateway.Client
	locks            *keylock.KeyLock
	logger           *zap.Logger

	now func() time.Time
}

func NewService(
	subscriptionRepo subscription.Repository,
	planRepo plan.Repository,
	customerRepo customer.Repository,
	paymentRepo payment.Repository,
	rec *reconciler.Service,
	gw gateway.Client,
	locks *keylock.KeyLock,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscriptionRepo: subscriptionRepo,
		planRepo:         planRepo,
		customerRepo:     customerRepo,
		paymentRepo:      paymentRepo,
		reconciler:       rec,
		gateway:          gw,
		locks:            locks,
		logger:           logger,
		now:              time.Now,
	}
}

// PurchaseResult bundles everything a completed purchase produced.
type PurchaseResult struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Invoice      *invoice.Invoice           `json:"invoice"`
	Payment      *payment.Payment           `json:"payment"`
}

// Create starts a subscription on the given plan. Plans with trial days start
// in trial; otherwise the subscription is active immediately. The plan's
// price, currency and cycle are snapshotted onto the subscription.
func (s *Service) Create(ctx context.Context, customerID int64, req *subscription.CreateSubscriptionRequest) (*subscription.Subscription, error) {
	p, err := s.availablePlan(ctx, customerID, req.PlanCode)
	if err != nil {
		return nil, err
	}

	if existing, err := s.subscriptionRepo.FindLiveByCustomerAndPlan(ctx, customerID, p.ID); err == nil {
		return nil, fmt.Errorf("subscription %s already covers this plan: %w", existing.Reference, xerrors.ErrDuplicateEntry)
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	start := s.today()
	if req.StartDate != nil {
		start = dateOf(*req.StartDate)
	}
	sub := s.build(customerID, p, start)

	if req.GatewayManaged {
		if err := s.registerWithGateway(ctx, p, sub); err != nil {
			return nil, err
		}
	}

	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if _, _, err := s.reconciler.EnsureInvoiceForCycle(ctx, sub); err != nil {
		s.logger.Error("failed to create initial invoice",
			zap.String("subscription", sub.Reference), zap.Error(err))
	}

	s.logger.Info("subscription created",
		zap.String("subscription", sub.Reference),
		zap.String("plan", p.Code),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

// PurchasePlan is the one-call storefront flow: subscription, invoice and a
// completed payment in a single request. Trial windows are skipped since the
// customer pays up front.
func (s *Service) PurchasePlan(ctx context.Context, customerID int64, req *subscription.PurchasePlanRequest) (*PurchaseResult, error) {
	p, err := s.availablePlan(ctx, customerID, req.PlanCode)
	if err != nil {
		return nil, err
	}

	if existing, err := s.subscriptionRepo.FindLiveByCustomerAndPlan(ctx, customerID, p.ID); err == nil {
		return nil, fmt.Errorf("subscription %s already covers this plan: %w", existing.Reference, xerrors.ErrDuplicateEntry)
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	sub := s.build(customerID, p, s.today())
	sub.Status = subscription.StatusActive
	sub.TrialEndDate = sql.NullTime{}
	if p.BillingCycle != cycle.OneTime {
		sub.NextBillingDate = sql.NullTime{Time: cycle.NextBillingDate(sub.EndDate, p.BillingCycle), Valid: true}
	}
	if req.PaymentMethod != "" {
		sub.PaymentMethod = sql.NullString{String: req.PaymentMethod, Valid: true}
	}

	if err := s.subscriptionRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	inv, _, err := s.reconciler.EnsureInvoiceForCycle(ctx, sub)
	if err != nil {
		return nil, err
	}

	pay, err := s.reconciler.RecordPayment(ctx, &reconciler.RecordPaymentInput{
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Method:         req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	sub, err = s.subscriptionRepo.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	inv, err = s.reconciler.Invoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("plan purchased",
		zap.String("subscription", sub.Reference),
		zap.String("invoice", inv.Reference),
		zap.String("payment", pay.Reference),
	)
	return &PurchaseResult{Subscription: sub, Invoice: inv, Payment: pay}, nil
}

// CheckoutOrder opens a gateway order covering the subscription's charge so
// the customer can pay it through the gateway's hosted checkout.
func (s *Service) CheckoutOrder(ctx context.Context, callerID int64, isAdmin bool, reference string) (*gateway.Resource, error) {
	sub, err := s.Get(ctx, callerID, isAdmin, reference)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, xerrors.ErrGatewayUnavailable
	}

	order, err := s.gateway.CreateOrder(ctx, &gateway.OrderRequest{
		Amount:   sub.Amount,
		Currency: sub.Currency,
		Receipt:  sub.Reference,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("checkout order created",
		zap.String("subscription", sub.Reference),
		zap.String("order", order.ID),
	)
	return order, nil
}

// ConfirmCheckout verifies the signature the hosted checkout returned and
// records the payment it covers. Replayed confirmations return the already
// recorded payment.
func (s *Service) ConfirmCheckout(ctx context.Context, callerID int64, isAdmin bool, reference string, req *subscription.ConfirmCheckoutRequest) (*payment.Payment, error) {
	sub, err := s.Get(ctx, callerID, isAdmin, reference)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil || !s.gateway.VerifyCheckoutSignature(req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		return nil, fmt.Errorf("checkout signature mismatch: %w", xerrors.ErrInvalidSignature)
	}

	return s.reconciler.RecordPayment(ctx, &reconciler.RecordPaymentInput{
		SubscriptionID:   sub.ID,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewayOrderID:   req.GatewayOrderID,
	})
}

// Get returns the subscription after an ownership check. Admins see all.
func (s *Service) Get(ctx context.Context, callerID int64, isAdmin bool, reference string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !isAdmin && sub.CustomerID != callerID {
		return nil, xerrors.ErrForbidden
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, customerID int64, filters *subscription.ListFilters) (*subscription.ListResponse, error) {
	if filters == nil {
		filters = &subscription.ListFilters{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	subs, total, err := s.subscriptionRepo.ListByCustomer(ctx, customerID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return &subscription.ListResponse{
		Subscriptions: subs,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
	}, nil
}

// Cancel stops the subscription and issues a prorated refund for the unused
// part of the current period, clamped to what was actually paid net of prior
// refunds. Suspended subscriptions cannot be cancelled directly.
func (s *Service) Cancel(ctx context.Context, callerID int64, isAdmin bool, reference, reason string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !isAdmin && sub.CustomerID != callerID {
		return nil, xerrors.ErrForbidden
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	// Re-read under the lock; a concurrent call may have won.
	sub, err = s.subscriptionRepo.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if !sub.CanCancel() {
		return nil, fmt.Errorf("cannot cancel %s subscription: %w", sub.Status, xerrors.ErrInvalidState)
	}

	today := s.today()

	// A trial has no paid amount to prorate; only paid periods are refunded.
	refund := decimal.Zero
	if !sub.InTrial(today) {
		refund = proration.Refund(sub.Amount, sub.StartDate, sub.EndDate, today)

		summary, err := s.paymentRepo.SummarizeSubscription(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		if refund.GreaterThan(summary.Net) {
			refund = summary.Net
		}
	}

	sub.Status = subscription.StatusCancelled
	sub.AutoRenew = false
	sub.CancelledAt = sql.NullTime{Time: today, Valid: true}
	sub.NextBillingDate = sql.NullTime{}
	if reason != "" {
		sub.CancellationReason = sql.NullString{String: reason, Valid: true}
	}

	if refund.IsPositive() {
		sub.RefundAmount = decimalNull(refund)
		sub.RefundStatus = sql.NullString{String: string(subscription.RefundRequested), Valid: true}
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if refund.IsPositive() {
		pending := &payment.Payment{
			Reference:      ref.Payment(),
			CustomerID:     sub.CustomerID,
			SubscriptionID: sub.ID,
			Type:           payment.TypeRefund,
			Amount:         refund.Neg(),
			Currency:       sub.Currency,
			Status:         payment.StatusPending,
			Method:         sub.PaymentMethod.String,
			RefundReason:   sql.NullString{String: "prorated refund on cancellation", Valid: true},
			PaymentDate:    today,
		}
		if err := s.paymentRepo.Create(ctx, pending); err != nil {
			return nil, fmt.Errorf("failed to create refund: %w", err)
		}
		s.logger.Info("prorated refund requested",
			zap.String("subscription", sub.Reference),
			zap.String("refund", pending.Reference),
			zap.String("amount", refund.String()),
		)
	}

	s.logger.Info("subscription cancelled",
		zap.String("subscription", sub.Reference),
		zap.String("reason", reason),
	)
	return sub, nil
}

// Reactivate revives a cancelled subscription while its paid period still
// runs. Outside that window the request fails; the customer must purchase
// again.
func (s *Service) Reactivate(ctx context.Context, callerID int64, isAdmin bool, reference string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !isAdmin && sub.CustomerID != callerID {
		return nil, xerrors.ErrForbidden
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	sub, err = s.subscriptionRepo.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if !sub.CanReactivate(s.today()) {
		return nil, fmt.Errorf("subscription %s is not reactivatable: %w", sub.Reference, xerrors.ErrInvalidState)
	}

	sub.Status = subscription.StatusActive
	sub.AutoRenew = true
	sub.CancelledAt = sql.NullTime{}
	sub.CancellationReason = sql.NullString{}
	if sub.BillingCycle != cycle.OneTime {
		sub.NextBillingDate = sql.NullTime{Time: cycle.NextBillingDate(sub.EndDate, sub.BillingCycle), Valid: true}
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to reactivate subscription: %w", err)
	}

	s.logger.Info("subscription reactivated", zap.String("subscription", sub.Reference))
	return sub, nil
}

// Renew rolls an active subscription into its next billing cycle: the new
// period starts the day after the old one ends, and the new cycle's invoice
// is created. Renewing the same period twice yields the same invoice.
func (s *Service) Renew(ctx context.Context, reference string) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(sub.Reference)
	sub, err = s.subscriptionRepo.FindByID(ctx, sub.ID)
	if err != nil {
		s.locks.Unlock(sub.Reference)
		return nil, err
	}
	if sub.Status != subscription.StatusActive {
		s.locks.Unlock(sub.Reference)
		return nil, fmt.Errorf("cannot renew %s subscription: %w", sub.Status, xerrors.ErrInvalidState)
	}
	if sub.BillingCycle == cycle.OneTime {
		s.locks.Unlock(sub.Reference)
		return nil, fmt.Errorf("one-time subscriptions do not renew: %w", xerrors.ErrInvalidInput)
	}

	sub.StartDate = sub.EndDate.AddDate(0, 0, 1)
	sub.EndDate = cycle.EndDate(sub.StartDate, sub.BillingCycle)
	sub.NextBillingDate = sql.NullTime{Time: cycle.NextBillingDate(sub.EndDate, sub.BillingCycle), Valid: true}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		s.locks.Unlock(sub.Reference)
		return nil, fmt.Errorf("failed to renew subscription: %w", err)
	}
	s.locks.Unlock(sub.Reference)

	// Invoice creation is keyed on the new period start, so a crash between
	// the date roll and here is repaired by the next renewal attempt.
	if _, _, err := s.reconciler.EnsureInvoiceForCycle(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("subscription renewed",
		zap.String("subscription", sub.Reference),
		zap.Time("period_start", sub.StartDate),
		zap.Time("period_end", sub.EndDate),
	)
	return sub, nil
}

// Expire marks a subscription whose paid period has run out.
func (s *Service) Expire(ctx context.Context, id int64) error {
	sub, err := s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	sub, err = s.subscriptionRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := sub.Transition(subscription.StatusExpired); err != nil {
		return err
	}
	sub.NextBillingDate = sql.NullTime{}
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return fmt.Errorf("failed to expire subscription: %w", err)
	}

	s.logger.Info("subscription expired", zap.String("subscription", sub.Reference))
	return nil
}

// MirrorGatewayStatus follows a lifecycle change reported by the gateway for
// one of its managed subscriptions. Terminal local statuses never move.
func (s *Service) MirrorGatewayStatus(ctx context.Context, gatewaySubscriptionID string, next subscription.Status) (*subscription.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByGatewayID(ctx, gatewaySubscriptionID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(sub.Reference)
	defer s.locks.Unlock(sub.Reference)

	sub, err = s.subscriptionRepo.FindByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if !sub.CanMirror(next) {
		return nil, fmt.Errorf("cannot mirror gateway status %s onto %s subscription: %w",
			next, sub.Status, xerrors.ErrInvalidState)
	}

	sub.Status = next
	switch next {
	case subscription.StatusCancelled, subscription.StatusCompleted:
		sub.AutoRenew = false
		sub.NextBillingDate = sql.NullTime{}
		if next == subscription.StatusCancelled {
			sub.CancelledAt = sql.NullTime{Time: s.today(), Valid: true}
			sub.CancellationReason = sql.NullString{String: "cancelled at gateway", Valid: true}
		}
	case subscription.StatusActive:
		if sub.BillingCycle != cycle.OneTime {
			sub.NextBillingDate = sql.NullTime{Time: cycle.NextBillingDate(sub.EndDate, sub.BillingCycle), Valid: true}
		}
	case subscription.StatusPaused:
		sub.NextBillingDate = sql.NullTime{}
	}

	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to mirror gateway status: %w", err)
	}

	s.logger.Info("gateway status mirrored",
		zap.String("subscription", sub.Reference),
		zap.String("status", string(next)),
	)
	return sub, nil
}

// PropagatePlanChange pushes a plan's new price and cycle onto its active
// subscriptions. Failures are collected so one bad row does not stall the
// rest.
func (s *Service) PropagatePlanChange(ctx context.Context, p *plan.Plan) (int, error) {
	subs, err := s.subscriptionRepo.ListActiveByPlan(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	updated := 0
	var firstErr error
	for i := range subs {
		sub := &subs[i]
		s.locks.Lock(sub.Reference)
		sub.PlanName = p.Name
		sub.Amount = p.Price
		sub.BillingCycle = p.BillingCycle
		err := s.subscriptionRepo.Update(ctx, sub)
		s.locks.Unlock(sub.Reference)
		if err != nil {
			s.logger.Error("failed to propagate plan change",
				zap.String("subscription", sub.Reference), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		updated++
	}
	return updated, firstErr
}

func (s *Service) build(customerID int64, p *plan.Plan, start time.Time) *subscription.Subscription {
	sub := &subscription.Subscription{
		Reference:    ref.Subscription(),
		CustomerID:   customerID,
		PlanID:       p.ID,
		PlanName:     p.Name,
		Amount:       p.Price,
		Currency:     p.Currency,
		BillingCycle: p.BillingCycle,
		Status:       subscription.StatusActive,
		StartDate:    start,
		EndDate:      cycle.EndDate(start, p.BillingCycle),
		AutoRenew:    p.AutoRenew,
	}
	if p.TrialDays > 0 {
		sub.Status = subscription.StatusTrial
		sub.TrialEndDate = sql.NullTime{Time: start.AddDate(0, 0, p.TrialDays), Valid: true}
	} else if p.BillingCycle != cycle.OneTime && p.AutoRenew {
		sub.NextBillingDate = sql.NullTime{Time: cycle.NextBillingDate(sub.EndDate, p.BillingCycle), Valid: true}
	}
	return sub
}

func (s *Service) availablePlan(ctx context.Context, customerID int64, code string) (*plan.Plan, error) {
	p, err := s.planRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", code, err)
	}

	var allowed []int64
	if p.Visibility == plan.VisibilitySelected {
		if allowed, err = s.planRepo.AllowedCustomerIDs(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	if !p.AvailableFor(customerID, allowed) {
		return nil, fmt.Errorf("plan %s is not available: %w", code, xerrors.ErrForbidden)
	}
	return p, nil
}

// registerWithGateway pushes the plan, customer and subscription to the
// gateway, reusing gateway ids recorded from earlier attempts.
func (s *Service) registerWithGateway(ctx context.Context, p *plan.Plan, sub *subscription.Subscription) error {
	if s.gateway == nil {
		return fmt.Errorf("gateway not configured: %w", xerrors.ErrGatewayUnavailable)
	}

	gwPlan, err := s.gateway.CreatePlan(ctx, &gateway.PlanRequest{
		ExternalID:     p.GatewayPlanID.String,
		Name:           p.Name,
		Amount:         p.Price,
		Currency:       p.Currency,
		IntervalMonths: p.BillingCycle.Months(),
	})
	if err != nil {
		return err
	}
	if !p.GatewayPlanID.Valid {
		p.GatewayPlanID = sql.NullString{String: gwPlan.ID, Valid: true}
		if err := s.planRepo.Update(ctx, p); err != nil {
			return err
		}
	}

	cust, err := s.customerRepo.FindByID(ctx, sub.CustomerID)
	if err != nil {
		return err
	}
	gwCust, err := s.gateway.CreateCustomer(ctx, &gateway.CustomerRequest{
		ExternalID: cust.GatewayCustomerID.String,
		Name:       cust.Name,
		Email:      cust.Email,
	})
	if err != nil {
		return err
	}
	if !cust.GatewayCustomerID.Valid {
		cust.GatewayCustomerID = sql.NullString{String: gwCust.ID, Valid: true}
		if err := s.customerRepo.Update(ctx, cust); err != nil {
			return err
		}
	}

	gwSub, err := s.gateway.CreateSubscription(ctx, &gateway.SubscriptionRequest{
		PlanID:     gwPlan.ID,
		CustomerID: gwCust.ID,
	})
	if err != nil {
		return err
	}
	sub.GatewaySubscriptionID = sql.NullString{String: gwSub.ID, Valid: true}
	return nil
}

func (s *Service) today() time.Time {
	return dateOf(s.now())
}

func decimalNull(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

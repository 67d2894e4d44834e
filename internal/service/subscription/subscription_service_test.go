package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	"github.com/GreaZeY/bms/internal/repository/memory"
	"github.com/GreaZeY/bms/internal/service/reconciler"
)

type fakeGateway struct {
	plans         int
	customers     int
	subscriptions int
}

func (f *fakeGateway) CreatePlan(_ context.Context, req *gateway.PlanRequest) (*gateway.Resource, error) {
	if req.ExternalID != "" {
		return &gateway.Resource{ID: req.ExternalID, Entity: "plan"}, nil
	}
	f.plans++
	return &gateway.Resource{ID: "plan_gw_1", Entity: "plan"}, nil
}

func (f *fakeGateway) CreateCustomer(_ context.Context, req *gateway.CustomerRequest) (*gateway.Resource, error) {
	if req.ExternalID != "" {
		return &gateway.Resource{ID: req.ExternalID, Entity: "customer"}, nil
	}
	f.customers++
	return &gateway.Resource{ID: "cust_gw_1", Entity: "customer"}, nil
}

func (f *fakeGateway) CreateSubscription(_ context.Context, _ *gateway.SubscriptionRequest) (*gateway.Resource, error) {
	f.subscriptions++
	return &gateway.Resource{ID: "sub_gw_1", Entity: "subscription", Status: "created"}, nil
}

func (f *fakeGateway) CreateOrder(_ context.Context, _ *gateway.OrderRequest) (*gateway.Resource, error) {
	return &gateway.Resource{ID: "order_gw_1", Entity: "order", Status: "created"}, nil
}

func (f *fakeGateway) FetchByID(_ context.Context, entity, id string) (*gateway.Resource, error) {
	return &gateway.Resource{ID: id, Entity: entity}, nil
}

func (f *fakeGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return signature == "sig_"+orderID+"_"+paymentID
}

type env struct {
	plans      *memory.PlanRepository
	customers  *memory.CustomerRepository
	subs       *memory.SubscriptionRepository
	invoices   *memory.InvoiceRepository
	payments   *memory.PaymentRepository
	gateway    *fakeGateway
	reconciler *reconciler.Service
	svc        *Service
}

func newEnv(today time.Time) *env {
	e := &env{
		plans:     memory.NewPlanRepository(),
		customers: memory.NewCustomerRepository(),
		subs:      memory.NewSubscriptionRepository(),
		invoices:  memory.NewInvoiceRepository(),
		payments:  memory.NewPaymentRepository(),
		gateway:   &fakeGateway{},
	}
	locks := keylock.New()
	logger := zap.NewNop()
	e.reconciler = reconciler.NewService(e.subs, e.invoices, e.payments, locks, logger)
	e.svc = NewService(e.subs, e.plans, e.customers, e.payments, e.reconciler, e.gateway, locks, logger)
	e.svc.now = func() time.Time { return today }
	return e
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *env) seedPlan(t *testing.T, code string, trialDays int) *plan.Plan {
	t.Helper()
	p := &plan.Plan{
		Code:         code,
		Name:         "Basic",
		Price:        decimal.NewFromInt(100),
		Currency:     "INR",
		BillingCycle: cycle.Monthly,
		TrialDays:    trialDays,
		AutoRenew:    true,
		Visibility:   plan.VisibilityAll,
		IsActive:     true,
	}
	require.NoError(t, e.plans.Create(context.Background(), p, nil))
	return p
}

func (e *env) seedCustomer(t *testing.T) *customer.Customer {
	t.Helper()
	c := &customer.Customer{
		Reference: "CUS-1",
		Name:      "Asha",
		Email:     "asha@example.com",
		Status:    customer.StatusActive,
	}
	require.NoError(t, e.customers.Create(context.Background(), c))
	return c
}

func TestCreateStartsInTrialWhenPlanHasTrialDays(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 14)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusTrial, sub.Status)
	require.True(t, sub.TrialEndDate.Valid)
	assert.True(t, sub.TrialEndDate.Time.Equal(date(2025, 1, 15)))
	assert.True(t, sub.EndDate.Equal(date(2025, 2, 1)))
	assert.False(t, sub.NextBillingDate.Valid)
	assert.True(t, sub.Amount.Equal(decimal.NewFromInt(100)))
}

func TestCreateActivatesImmediatelyWithoutTrial(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	require.True(t, sub.NextBillingDate.Valid)
	assert.True(t, sub.NextBillingDate.Time.Equal(date(2025, 3, 1)))

	// The first cycle's invoice is created alongside.
	invs, err := e.invoices.ListByCustomer(context.Background(), cust.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.True(t, invs[0].PeriodStart.Equal(sub.StartDate))
}

func TestCreateSnapshotIsImmuneToLaterPlanEdits(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	p := e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	p.Price = decimal.NewFromInt(250)
	require.NoError(t, e.plans.Update(context.Background(), p))

	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
}

func TestCreateRejectsSecondLiveSubscriptionOnSamePlan(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	_, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestCreateEnforcesPlanVisibility(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	p := e.seedPlan(t, "vip", 0)
	p.Visibility = plan.VisibilitySelected
	require.NoError(t, e.plans.Update(context.Background(), p))
	require.NoError(t, e.plans.ReplaceAllowedCustomers(context.Background(), p.ID, []int64{99}))
	cust := e.seedCustomer(t)

	_, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "vip"})
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestCreateGatewayManagedStoresGatewayIDs(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	p := e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{
		PlanCode:       "basic",
		GatewayManaged: true,
	})
	require.NoError(t, err)

	require.True(t, sub.GatewaySubscriptionID.Valid)
	assert.Equal(t, "sub_gw_1", sub.GatewaySubscriptionID.String)

	gotPlan, err := e.plans.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, gotPlan.GatewayPlanID.Valid)

	gotCust, err := e.customers.FindByID(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.True(t, gotCust.GatewayCustomerID.Valid)
	assert.Equal(t, 1, e.gateway.subscriptions)
}

func TestPurchasePlanProducesActiveSubscriptionWithPaidInvoice(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 14)
	cust := e.seedCustomer(t)

	result, err := e.svc.PurchasePlan(context.Background(), cust.ID, &subscription.PurchasePlanRequest{
		PlanCode:      "basic",
		PaymentMethod: "upi",
	})
	require.NoError(t, err)

	// Paying up front skips the trial even on a trial plan.
	assert.Equal(t, subscription.StatusActive, result.Subscription.Status)
	assert.False(t, result.Subscription.TrialEndDate.Valid)
	assert.Equal(t, invoice.StatusPaid, result.Invoice.Status)
	assert.Equal(t, payment.StatusCompleted, result.Payment.Status)
	assert.True(t, result.Payment.Amount.Equal(decimal.NewFromInt(100)))
}

func TestCancelIssuesProratedRefundClampedToNetPaid(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	_, err = e.reconciler.RecordPayment(context.Background(), &reconciler.RecordPaymentInput{
		SubscriptionID: created.ID,
	})
	require.NoError(t, err)

	// Ten days into a 31-day January cycle: 21/31 of the price comes back.
	e.svc.now = func() time.Time { return date(2025, 1, 11) }
	sub, err := e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "too expensive")
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.False(t, sub.NextBillingDate.Valid)
	require.True(t, sub.CancelledAt.Valid)
	require.True(t, sub.RefundAmount.Valid)
	assert.Equal(t, "67.74", sub.RefundAmount.Decimal.StringFixed(2))
	assert.Equal(t, string(subscription.RefundRequested), sub.RefundStatus.String)

	payments, err := e.payments.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	var refund *payment.Payment
	for i := range payments {
		if payments[i].Type == payment.TypeRefund {
			refund = &payments[i]
		}
	}
	require.NotNil(t, refund)
	assert.Equal(t, payment.StatusPending, refund.Status)
	assert.Equal(t, "-67.74", refund.Amount.StringFixed(2))
}

func TestCancelWithoutPaymentsCreatesNoRefund(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 14)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	sub, err := e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "")
	require.NoError(t, err)

	assert.False(t, sub.RefundAmount.Valid)
	payments, err := e.payments.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCancelRejectsSuspendedSubscription(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	_, err = e.reconciler.RecordPaymentFailure(context.Background(), created.ID, "card")
	require.NoError(t, err)

	_, err = e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestCancelRejectsForeignCaller(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	_, err = e.svc.Cancel(context.Background(), cust.ID+1, false, created.Reference, "")
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestReactivateWithinPaidWindow(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	_, err = e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "second thoughts")
	require.NoError(t, err)

	e.svc.now = func() time.Time { return date(2025, 1, 20) }
	sub, err := e.svc.Reactivate(context.Background(), cust.ID, false, created.Reference)
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.False(t, sub.CancelledAt.Valid)
	assert.True(t, sub.NextBillingDate.Valid)
}

func TestReactivateFailsAfterPaidPeriodEnds(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	_, err = e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "")
	require.NoError(t, err)

	e.svc.now = func() time.Time { return date(2025, 2, 2) }
	_, err = e.svc.Reactivate(context.Background(), cust.ID, false, created.Reference)
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestRenewRollsPeriodAndCreatesNextInvoice(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	sub, err := e.svc.Renew(context.Background(), created.Reference)
	require.NoError(t, err)

	// The new period starts the day after the old one ended.
	assert.True(t, sub.StartDate.Equal(date(2025, 2, 2)))
	assert.True(t, sub.EndDate.Equal(date(2025, 3, 2)))
	require.True(t, sub.NextBillingDate.Valid)
	assert.True(t, sub.NextBillingDate.Time.Equal(date(2025, 4, 2)))

	invs, err := e.invoices.ListByCustomer(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.Len(t, invs, 2)

	// Renewing the same period again must not duplicate the invoice.
	_, _, err = e.reconciler.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)
	invs, err = e.invoices.ListByCustomer(context.Background(), cust.ID)
	require.NoError(t, err)
	assert.Len(t, invs, 2)
}

func TestMirrorGatewayStatusNeverMovesTerminalSubscriptions(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	created, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{
		PlanCode:       "basic",
		GatewayManaged: true,
	})
	require.NoError(t, err)
	_, err = e.svc.Cancel(context.Background(), cust.ID, false, created.Reference, "")
	require.NoError(t, err)

	_, err = e.svc.MirrorGatewayStatus(context.Background(), "sub_gw_1", subscription.StatusActive)
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestMirrorGatewayCancellationSetsCancellationFields(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	_, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{
		PlanCode:       "basic",
		GatewayManaged: true,
	})
	require.NoError(t, err)

	sub, err := e.svc.MirrorGatewayStatus(context.Background(), "sub_gw_1", subscription.StatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, subscription.StatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.True(t, sub.CancelledAt.Valid)
}

func TestPropagatePlanChangeOnlyTouchesActiveSubscriptions(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	p := e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)
	other := &customer.Customer{Reference: "CUS-2", Name: "Ben", Email: "ben@example.com", Status: customer.StatusActive}
	require.NoError(t, e.customers.Create(context.Background(), other))

	first, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	second, err := e.svc.Create(context.Background(), other.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)
	_, err = e.svc.Cancel(context.Background(), other.ID, false, second.Reference, "")
	require.NoError(t, err)

	p.Price = decimal.NewFromInt(150)
	updated, err := e.svc.PropagatePlanChange(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	got, err := e.subs.FindByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(150)))

	gotCancelled, err := e.subs.FindByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.True(t, gotCancelled.Amount.Equal(decimal.NewFromInt(100)))
}

func TestConfirmCheckoutRecordsPaymentOnValidSignature(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 14)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	order, err := e.svc.CheckoutOrder(context.Background(), cust.ID, false, sub.Reference)
	require.NoError(t, err)
	require.Equal(t, "order_gw_1", order.ID)

	pay, err := e.svc.ConfirmCheckout(context.Background(), cust.ID, false, sub.Reference, &subscription.ConfirmCheckoutRequest{
		GatewayOrderID:   order.ID,
		GatewayPaymentID: "pay_gw_1",
		Signature:        "sig_order_gw_1_pay_gw_1",
	})
	require.NoError(t, err)
	assert.True(t, pay.Amount.Equal(decimal.NewFromInt(100)))

	// Payment ends the trial.
	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
}

func TestConfirmCheckoutRejectsBadSignature(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	e.seedPlan(t, "basic", 0)
	cust := e.seedCustomer(t)

	sub, err := e.svc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	_, err = e.svc.ConfirmCheckout(context.Background(), cust.ID, false, sub.Reference, &subscription.ConfirmCheckoutRequest{
		GatewayOrderID:   "order_gw_1",
		GatewayPaymentID: "pay_gw_1",
		Signature:        "forged",
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidSignature)

	pays, err := e.payments.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Empty(t, pays)
}

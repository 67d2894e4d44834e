package reconciler

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	"github.com/GreaZeY/bms/internal/domain/payment"
	"github.com/GreaZeY/bms/internal/domain/subscription"
	"github.com/GreaZeY/bms/internal/pkg/cycle"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/pkg/ref"
	"github.com/GreaZeY/bms/internal/repository/memory"
)

type env struct {
	subs     *memory.SubscriptionRepository
	invoices *memory.InvoiceRepository
	payments *memory.PaymentRepository
	svc      *Service
}

func newEnv(today time.Time) *env {
	e := &env{
		subs:     memory.NewSubscriptionRepository(),
		invoices: memory.NewInvoiceRepository(),
		payments: memory.NewPaymentRepository(),
	}
	e.svc = NewService(e.subs, e.invoices, e.payments, keylock.New(), zap.NewNop())
	e.svc.now = func() time.Time { return today }
	return e
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *env) seedSubscription(t *testing.T, status subscription.Status, start time.Time) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Reference:    ref.Subscription(),
		CustomerID:   1,
		PlanID:       1,
		PlanName:     "Basic",
		Amount:       decimal.NewFromInt(100),
		Currency:     "INR",
		BillingCycle: cycle.Monthly,
		Status:       status,
		StartDate:    start,
		EndDate:      cycle.EndDate(start, cycle.Monthly),
		AutoRenew:    true,
	}
	if status == subscription.StatusTrial {
		sub.TrialEndDate = sql.NullTime{Time: start.AddDate(0, 0, 14), Valid: true}
	}
	require.NoError(t, e.subs.Create(context.Background(), sub))
	return sub
}

func TestEnsureInvoiceForCycleIsIdempotent(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	first, created, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, invoice.StatusDraft, first.Status)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, first.PeriodStart.Equal(sub.StartDate))

	second, created, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Reference, second.Reference)
}

func TestCreateInvoiceForCycleRejectsDuplicate(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	_, err := e.svc.CreateInvoiceForCycle(context.Background(), sub.ID)
	require.NoError(t, err)

	_, err = e.svc.CreateInvoiceForCycle(context.Background(), sub.ID)
	assert.ErrorIs(t, err, xerrors.ErrDuplicateInvoice)
}

func TestRecordPaymentActivatesTrialAndSettlesInvoice(t *testing.T) {
	e := newEnv(date(2025, 1, 5))
	sub := e.seedSubscription(t, subscription.StatusTrial, date(2025, 1, 1))
	inv, _, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)

	pay, err := e.svc.RecordPayment(context.Background(), &RecordPaymentInput{
		SubscriptionID: sub.ID,
		Method:         "upi",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, pay.Status)
	assert.True(t, pay.Amount.Equal(sub.Amount))
	require.True(t, pay.InvoiceID.Valid)
	assert.Equal(t, inv.ID, pay.InvoiceID.Int64)

	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	require.True(t, got.NextBillingDate.Valid)
	assert.True(t, got.NextBillingDate.Time.Equal(date(2025, 3, 1)))

	paidInv, err := e.invoices.FindByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paidInv.Status)
}

func TestRecordPaymentDeduplicatesGatewayDeliveries(t *testing.T) {
	e := newEnv(date(2025, 1, 5))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	in := &RecordPaymentInput{SubscriptionID: sub.ID, GatewayPaymentID: "pay_123"}
	first, err := e.svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)

	second, err := e.svc.RecordPayment(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.Reference, second.Reference)

	all, err := e.payments.ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentFailureSuspendsAndLaterPaymentRecovers(t *testing.T) {
	e := newEnv(date(2025, 1, 10))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	_, err := e.svc.RecordPaymentFailure(context.Background(), sub.ID, "card")
	require.NoError(t, err)

	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusSuspended, got.Status)

	_, err = e.svc.RecordPayment(context.Background(), &RecordPaymentInput{SubscriptionID: sub.ID})
	require.NoError(t, err)

	got, err = e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
}

func TestProcessRefundAndComplete(t *testing.T) {
	e := newEnv(date(2025, 1, 15))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	source, err := e.svc.RecordPayment(context.Background(), &RecordPaymentInput{SubscriptionID: sub.ID})
	require.NoError(t, err)

	refund, err := e.svc.ProcessRefund(context.Background(), source.ID, "service issue")
	require.NoError(t, err)
	assert.Equal(t, payment.TypeRefund, refund.Type)
	assert.Equal(t, payment.StatusPending, refund.Status)
	assert.True(t, refund.Amount.Equal(decimal.NewFromInt(-100)))
	require.True(t, refund.SourcePaymentID.Valid)
	assert.Equal(t, source.ID, refund.SourcePaymentID.Int64)

	updatedSource, err := e.payments.FindByID(context.Background(), source.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, updatedSource.Status)
	assert.True(t, updatedSource.RefundedAt.Valid)

	completed, err := e.svc.CompleteRefund(context.Background(), refund.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, completed.Status)
}

func TestProcessRefundRejectsNonRefundableSource(t *testing.T) {
	e := newEnv(date(2025, 1, 15))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	pending := &payment.Payment{
		Reference:      ref.Payment(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Type:           payment.TypePayment,
		Amount:         decimal.NewFromInt(100),
		Currency:       "INR",
		Status:         payment.StatusPending,
		Method:         "card",
		PaymentDate:    date(2025, 1, 15),
	}
	require.NoError(t, e.payments.Create(context.Background(), pending))

	_, err := e.svc.ProcessRefund(context.Background(), pending.ID, "")
	assert.ErrorIs(t, err, xerrors.ErrNotRefundable)
}

func TestProcessRefundRejectsWhenExceedingNetPaid(t *testing.T) {
	e := newEnv(date(2025, 1, 15))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	source, err := e.svc.RecordPayment(context.Background(), &RecordPaymentInput{SubscriptionID: sub.ID})
	require.NoError(t, err)

	// A prior partial refund leaves less net paid than the source amount.
	prior := &payment.Payment{
		Reference:      ref.Payment(),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Type:           payment.TypeRefund,
		Amount:         decimal.NewFromInt(-70),
		Currency:       "INR",
		Status:         payment.StatusCompleted,
		Method:         "card",
		PaymentDate:    date(2025, 1, 10),
	}
	require.NoError(t, e.payments.Create(context.Background(), prior))

	_, err = e.svc.ProcessRefund(context.Background(), source.ID, "")
	assert.ErrorIs(t, err, xerrors.ErrRefundExceedsBalance)
}

func TestCompleteRefundRejectsNonPendingRefund(t *testing.T) {
	e := newEnv(date(2025, 1, 15))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	pay, err := e.svc.RecordPayment(context.Background(), &RecordPaymentInput{SubscriptionID: sub.ID})
	require.NoError(t, err)

	_, err = e.svc.CompleteRefund(context.Background(), pay.ID)
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestMarkInvoiceSentOnlyFromDraft(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	inv, _, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)

	sent, err := e.svc.MarkInvoiceSent(context.Background(), inv.Reference)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, sent.Status)

	_, err = e.svc.MarkInvoiceSent(context.Background(), inv.Reference)
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

func TestCancelInvoiceFreesTheCycleForReissue(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	inv, _, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)

	cancelled, err := e.svc.CancelInvoice(context.Background(), inv.Reference)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, cancelled.Status)

	// The natural key ignores cancelled invoices, so the cycle can be
	// invoiced again.
	reissued, created, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, inv.ID, reissued.ID)
}

func TestCancelInvoiceRejectsPaidInvoice(t *testing.T) {
	e := newEnv(date(2025, 1, 1))
	sub := e.seedSubscription(t, subscription.StatusActive, date(2025, 1, 1))

	inv, _, err := e.svc.EnsureInvoiceForCycle(context.Background(), sub)
	require.NoError(t, err)
	_, err = e.svc.RecordPayment(context.Background(), &RecordPaymentInput{SubscriptionID: sub.ID})
	require.NoError(t, err)

	_, err = e.svc.CancelInvoice(context.Background(), inv.Reference)
	assert.ErrorIs(t, err, xerrors.ErrInvalidState)
}

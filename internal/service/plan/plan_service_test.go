package plan

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/customer"
	"github.com/GreaZeY/bms/internal/domain/plan"
	"github.com/GreaZeY/bms/internal/domain/subscription"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/repository/memory"
	"github.com/GreaZeY/bms/internal/service/reconciler"
	subscriptionsvc "github.com/GreaZeY/bms/internal/service/subscription"
)

type env struct {
	plans     *memory.PlanRepository
	customers *memory.CustomerRepository
	subs      *memory.SubscriptionRepository
	subSvc    *subscriptionsvc.Service
	svc       *Service
}

func newEnv() *env {
	e := &env{
		plans:     memory.NewPlanRepository(),
		customers: memory.NewCustomerRepository(),
		subs:      memory.NewSubscriptionRepository(),
	}
	locks := keylock.New()
	logger := zap.NewNop()
	payments := memory.NewPaymentRepository()
	rec := reconciler.NewService(e.subs, memory.NewInvoiceRepository(), payments, locks, logger)
	e.subSvc = subscriptionsvc.NewService(e.subs, e.plans, e.customers, payments, rec, nil, locks, logger)
	e.svc = NewService(e.plans, e.subSvc, logger)
	return e
}

func basicPlanRequest() *plan.CreatePlanRequest {
	return &plan.CreatePlanRequest{
		Code:         "basic",
		Name:         "Basic",
		Price:        decimal.NewFromInt(100),
		Currency:     "INR",
		BillingCycle: "monthly",
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	e := newEnv()

	p, err := e.svc.Create(context.Background(), basicPlanRequest())
	require.NoError(t, err)

	assert.True(t, p.IsActive)
	assert.True(t, p.AutoRenew)
	assert.Equal(t, plan.VisibilityAll, p.Visibility)
	assert.NotZero(t, p.ID)
}

func TestCreateRejectsUnknownCycleAndNegativePrice(t *testing.T) {
	e := newEnv()

	req := basicPlanRequest()
	req.BillingCycle = "fortnightly"
	_, err := e.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)

	req = basicPlanRequest()
	req.Price = decimal.NewFromInt(-1)
	_, err = e.svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	e := newEnv()

	_, err := e.svc.Create(context.Background(), basicPlanRequest())
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), basicPlanRequest())
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestListForCustomerHidesRestrictedPlans(t *testing.T) {
	e := newEnv()

	_, err := e.svc.Create(context.Background(), basicPlanRequest())
	require.NoError(t, err)

	vip := basicPlanRequest()
	vip.Code = "vip"
	vip.Visibility = string(plan.VisibilitySelected)
	vip.AllowedCustomerIDs = []int64{7}
	_, err = e.svc.Create(context.Background(), vip)
	require.NoError(t, err)

	visible, err := e.svc.ListForCustomer(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "basic", visible[0].Code)

	allowed, err := e.svc.ListForCustomer(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, allowed, 2)
}

func TestUpdatePropagatesPriceToActiveSubscriptions(t *testing.T) {
	e := newEnv()

	_, err := e.svc.Create(context.Background(), basicPlanRequest())
	require.NoError(t, err)
	cust := &customer.Customer{Reference: "CUS-1", Name: "Asha", Email: "asha@example.com", Status: customer.StatusActive}
	require.NoError(t, e.customers.Create(context.Background(), cust))

	sub, err := e.subSvc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(180)
	_, err = e.svc.Update(context.Background(), "basic", &plan.UpdatePlanRequest{
		Price:             &newPrice,
		PropagateToActive: true,
	})
	require.NoError(t, err)

	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(newPrice))
}

func TestUpdateWithoutPropagationLeavesSnapshots(t *testing.T) {
	e := newEnv()

	_, err := e.svc.Create(context.Background(), basicPlanRequest())
	require.NoError(t, err)
	cust := &customer.Customer{Reference: "CUS-1", Name: "Asha", Email: "asha@example.com", Status: customer.StatusActive}
	require.NoError(t, e.customers.Create(context.Background(), cust))

	sub, err := e.subSvc.Create(context.Background(), cust.ID, &subscription.CreateSubscriptionRequest{PlanCode: "basic"})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(180)
	_, err = e.svc.Update(context.Background(), "basic", &plan.UpdatePlanRequest{Price: &newPrice})
	require.NoError(t, err)

	got, err := e.subs.FindByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
}

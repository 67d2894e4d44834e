// Package gateway defines the contract with the external payment gateway.
// The gateway is a black box: it authorizes charges, manages recurring
// subscriptions on its side and reports back through webhooks.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type PlanRequest struct {
	// ExternalID, when set, names an already-created gateway plan; the call
	// becomes a fetch instead of a create, making retries safe.
	ExternalID     string
	Name           string
	Amount         decimal.Decimal
	Currency       string
	IntervalMonths int
}

type CustomerRequest struct {
	ExternalID string
	Name       string
	Email      string
}

type SubscriptionRequest struct {
	ExternalID string
	PlanID     string
	CustomerID string
	TotalCount int
}

type OrderRequest struct {
	ExternalID string
	Amount     decimal.Decimal
	Currency   string
	Receipt    string
}

type Resource struct {
	ID     string `json:"id"`
	Entity string `json:"entity"`
	Status string `json:"status"`
}

// Client is the outbound gateway surface. Every call is bounded by the
// implementation's timeout and idempotent when a previously-returned external
// id is passed back in.
type Client interface {
	CreatePlan(ctx context.Context, req *PlanRequest) (*Resource, error)
	CreateCustomer(ctx context.Context, req *CustomerRequest) (*Resource, error)
	CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*Resource, error)
	CreateOrder(ctx context.Context, req *OrderRequest) (*Resource, error)
	FetchByID(ctx context.Context, entity, id string) (*Resource, error)

	// VerifyCheckoutSignature checks the signature the gateway's hosted
	// checkout hands back after a successful payment.
	VerifyCheckoutSignature(orderID, paymentID, signature string) bool
}

package subscription

import "time"

type CreateSubscriptionRequest struct {
	PlanCode  string     `json:"plan_code" binding:"required"`
	StartDate *time.Time `json:"start_date"`

	// When true, recurring billing is delegated to the payment gateway and
	// the gateway subscription reference is stored locally.
	GatewayManaged bool `json:"gateway_managed"`
}

type PurchasePlanRequest struct {
	PlanCode      string `json:"plan_code" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// ConfirmCheckoutRequest carries the gateway's hosted-checkout callback
// fields; the signature is an HMAC over order id and payment id.
type ConfirmCheckoutRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

type ListFilters struct {
	Status   Status
	PlanID   int64
	Page     int
	PageSize int
}

type ListResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
}

type Counts struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Cancelled int64 `json:"cancelled"`
}

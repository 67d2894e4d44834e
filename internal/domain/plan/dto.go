package plan

import "github.com/shopspring/decimal"

type CreatePlanRequest struct {
	Code               string          `json:"code" binding:"required"`
	Name               string          `json:"name" binding:"required"`
	Description        string          `json:"description"`
	Price              decimal.Decimal `json:"price" binding:"required"`
	Currency           string          `json:"currency"`
	BillingCycle       string          `json:"billing_cycle" binding:"required"`
	TrialDays          int             `json:"trial_days"`
	AutoRenew          *bool           `json:"auto_renew"`
	Visibility         string          `json:"visibility"`
	AllowedCustomerIDs []int64         `json:"allowed_customer_ids"`
}

// UpdatePlanRequest carries partial edits; nil fields are left untouched.
type UpdatePlanRequest struct {
	Name               *string          `json:"name"`
	Description        *string          `json:"description"`
	Price              *decimal.Decimal `json:"price"`
	BillingCycle       *string          `json:"billing_cycle"`
	Visibility         *string          `json:"visibility"`
	IsActive           *bool            `json:"is_active"`
	AllowedCustomerIDs []int64          `json:"allowed_customer_ids"`

	// Apply the new price and cycle to active subscriptions on this plan.
	PropagateToActive bool `json:"propagate_to_active"`
}

type ListFilters struct {
	ActiveOnly bool
	CustomerID int64
}

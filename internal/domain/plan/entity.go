package plan

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GreaZeY/bms/internal/pkg/cycle"
)

type Visibility string

const (
	VisibilityAll      Visibility = "all_customers"
	VisibilitySelected Visibility = "selected_customers"
)

type Plan struct {
	ID           int64           `json:"id" db:"id"`
	Code         string          `json:"code" db:"code"`
	Name         string          `json:"name" db:"name"`
	Description  sql.NullString  `json:"description,omitempty" db:"description"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Currency     string          `json:"currency" db:"currency"`
	BillingCycle cycle.Cycle     `json:"billing_cycle" db:"billing_cycle"`
	TrialDays    int             `json:"trial_days" db:"trial_days"`
	AutoRenew    bool            `json:"auto_renew" db:"auto_renew"`
	Visibility   Visibility      `json:"visibility" db:"visibility"`
	IsActive     bool            `json:"is_active" db:"is_active"`

	// Set once the plan has been registered with the payment gateway.
	GatewayPlanID sql.NullString `json:"gateway_plan_id,omitempty" db:"gateway_plan_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AvailableFor reports whether the customer may subscribe to this plan.
// Restricted plans carry an explicit allow-list.
func (p *Plan) AvailableFor(customerID int64, allowed []int64) bool {
	if !p.IsActive {
		return false
	}
	if p.Visibility != VisibilitySelected {
		return true
	}
	for _, id := range allowed {
		if id == customerID {
			return true
		}
	}
	return false
}

package report

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindRevenue      Kind = "revenue"
	KindSubscription Kind = "subscription"
)

// MonthlyReport is a read-only rollup produced by the monthly sweep.
type MonthlyReport struct {
	ID    int64  `json:"id" db:"id"`
	Kind  Kind   `json:"kind" db:"kind"`
	Month string `json:"month" db:"month"` // YYYY-MM

	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`

	TotalSubscriptions     int64 `json:"total_subscriptions" db:"total_subscriptions"`
	ActiveSubscriptions    int64 `json:"active_subscriptions" db:"active_subscriptions"`
	CancelledSubscriptions int64 `json:"cancelled_subscriptions" db:"cancelled_subscriptions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

type Invoice struct {
	ID             int64  `json:"id" db:"id"`
	Reference      string `json:"reference" db:"reference"`
	CustomerID     int64  `json:"customer_id" db:"customer_id"`
	SubscriptionID int64  `json:"subscription_id" db:"subscription_id"`

	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Currency string          `json:"currency" db:"currency"`

	InvoiceDate time.Time `json:"invoice_date" db:"invoice_date"`
	DueDate     time.Time `json:"due_date" db:"due_date"`

	// PeriodStart identifies the billing cycle this invoice covers. Together
	// with the subscription it forms the natural key that keeps invoice
	// creation idempotent: at most one non-cancelled invoice per cycle.
	PeriodStart time.Time `json:"period_start" db:"period_start"`

	Status Status `json:"status" db:"status"`
	Items  []Item `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Item struct {
	ID        int64           `json:"id" db:"id"`
	InvoiceID int64           `json:"invoice_id" db:"invoice_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
}

// Open reports whether the invoice can still accept payments.
func (i *Invoice) Open() bool {
	switch i.Status {
	case StatusDraft, StatusSent, StatusOverdue:
		return true
	}
	return false
}

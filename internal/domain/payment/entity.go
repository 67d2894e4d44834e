package payment

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypePayment Type = "payment"
	TypeRefund  Type = "refund"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

type Payment struct {
	ID             int64         `json:"id" db:"id"`
	Reference      string        `json:"reference" db:"reference"`
	CustomerID     int64         `json:"customer_id" db:"customer_id"`
	SubscriptionID int64         `json:"subscription_id" db:"subscription_id"`
	InvoiceID      sql.NullInt64 `json:"invoice_id,omitempty" db:"invoice_id"`

	Type Type `json:"type" db:"type"`

	// Amount is positive for payments and negative for refunds.
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Currency string          `json:"currency" db:"currency"`

	Status Status `json:"status" db:"status"`
	Method string `json:"method" db:"method"`

	// Gateway identifiers used for deduplication of asynchronous events.
	GatewayPaymentID sql.NullString `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	GatewayOrderID   sql.NullString `json:"gateway_order_id,omitempty" db:"gateway_order_id"`

	// Refund bookkeeping.
	SourcePaymentID sql.NullInt64  `json:"source_payment_id,omitempty" db:"source_payment_id"`
	RefundReason    sql.NullString `json:"refund_reason,omitempty" db:"refund_reason"`
	RefundedAt      sql.NullTime   `json:"refunded_at,omitempty" db:"refunded_at"`

	PaymentDate time.Time `json:"payment_date" db:"payment_date"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Refundable reports whether a refund may be issued against this record.
func (p *Payment) Refundable() bool {
	return p.Type == TypePayment && p.Status == StatusCompleted
}

// Summary is the net financial position of a customer or subscription.
type Summary struct {
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	Net           decimal.Decimal `json:"net"`
}

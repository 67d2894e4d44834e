package customer

import (
	"database/sql"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Customer struct {
	ID        int64          `json:"id" db:"id"`
	Reference string         `json:"reference" db:"reference"`
	Name      string         `json:"name" db:"name"`
	Email     string         `json:"email" db:"email"`
	Phone     sql.NullString `json:"phone,omitempty" db:"phone"`
	Status    Status         `json:"status" db:"status"`

	// Gateway-side customer record, set once the customer has been pushed to
	// the payment gateway.
	GatewayCustomerID sql.NullString `json:"gateway_customer_id,omitempty" db:"gateway_customer_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

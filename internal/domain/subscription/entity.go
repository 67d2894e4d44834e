package subscription

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GreaZeY/bms/internal/pkg/cycle"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
)

type RefundStatus string

const (
	RefundRequested RefundStatus = "requested"
	RefundCompleted RefundStatus = "completed"
)

type Subscription struct {
	ID         int64  `json:"id" db:"id"`
	Reference  string `json:"reference" db:"reference"`
	CustomerID int64  `json:"customer_id" db:"customer_id"`
	PlanID     int64  `json:"plan_id" db:"plan_id"`
	PlanName   string `json:"plan_name" db:"plan_name"`

	// Snapshot of the plan taken at creation. Later plan edits only land here
	// through explicit propagation to active subscriptions.
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Currency     string          `json:"currency" db:"currency"`
	BillingCycle cycle.Cycle     `json:"billing_cycle" db:"billing_cycle"`

	Status          Status       `json:"status" db:"status"`
	StartDate       time.Time    `json:"start_date" db:"start_date"`
	EndDate         time.Time    `json:"end_date" db:"end_date"`
	TrialEndDate    sql.NullTime `json:"trial_end_date,omitempty" db:"trial_end_date"`
	NextBillingDate sql.NullTime `json:"next_billing_date,omitempty" db:"next_billing_date"`
	AutoRenew       bool         `json:"auto_renew" db:"auto_renew"`

	// Set only on cancellation.
	CancelledAt        sql.NullTime        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason sql.NullString      `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RefundAmount       decimal.NullDecimal `json:"refund_amount,omitempty" db:"refund_amount"`
	RefundStatus       sql.NullString      `json:"refund_status,omitempty" db:"refund_status"`

	PaymentMethod sql.NullString `json:"payment_method,omitempty" db:"payment_method"`

	// Set only for gateway-managed recurring billing.
	GatewaySubscriptionID sql.NullString `json:"gateway_subscription_id,omitempty" db:"gateway_subscription_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// transitions lists every status change the engine performs itself. Gateway
// lifecycle mirroring (completed/paused/resumed) is validated separately in
// CanMirror since those arrive from outside the state machine.
var transitions = map[Status][]Status{
	StatusTrial:     {StatusActive, StatusCancelled},
	StatusActive:    {StatusActive, StatusSuspended, StatusCancelled, StatusExpired, StatusCompleted, StatusPaused},
	StatusSuspended: {StatusActive, StatusCompleted, StatusPaused},
	StatusPaused:    {StatusActive},
	StatusCancelled: {},
	StatusExpired:   {},
	StatusCompleted: {},
}

// CanTransition reports whether the state machine permits moving to next.
// Cancelled and Expired are terminal here; the one exception, reactivation
// within the cancelled-but-not-expired window, goes through CanReactivate.
func (s *Subscription) CanTransition(next Status) bool {
	for _, allowed := range transitions[s.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the subscription to next or fails with ErrInvalidState.
func (s *Subscription) Transition(next Status) error {
	if !s.CanTransition(next) {
		return xerrors.ErrInvalidState
	}
	s.Status = next
	return nil
}

// CanMirror reports whether a gateway lifecycle signal may set next. The
// gateway owns the truth for its subscriptions, so any non-terminal local
// status follows it; terminal statuses never change.
func (s *Subscription) CanMirror(next Status) bool {
	switch s.Status {
	case StatusCancelled, StatusExpired, StatusCompleted:
		return false
	}
	switch next {
	case StatusActive, StatusCancelled, StatusCompleted, StatusPaused:
		return true
	}
	return false
}

// CanCancel reports whether an explicit cancel request is allowed. Only live
// subscriptions can be cancelled; suspended ones must be resolved first.
func (s *Subscription) CanCancel() bool {
	return s.Status == StatusActive || s.Status == StatusTrial
}

// CanReactivate reports whether the cancelled subscription may be revived:
// only while the already-paid period has not yet run out.
func (s *Subscription) CanReactivate(today time.Time) bool {
	return s.Status == StatusCancelled && !today.After(s.EndDate)
}

// InTrial reports whether the subscription is still inside its trial window.
func (s *Subscription) InTrial(today time.Time) bool {
	return s.Status == StatusTrial && s.TrialEndDate.Valid && !today.After(s.TrialEndDate.Time)
}

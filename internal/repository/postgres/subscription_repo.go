package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GreaZeY/bms/internal/domain/subscription"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, reference, customer_id, plan_id, plan_name,
	amount, currency, billing_cycle,
	status, start_date, end_date, trial_end_date, next_billing_date, auto_renew,
	cancelled_at, cancellation_reason, refund_amount, refund_status,
	payment_method, gateway_subscription_id,
	created_at, updated_at
`

func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			reference, customer_id, plan_id, plan_name,
			amount, currency, billing_cycle,
			status, start_date, end_date, trial_end_date, next_billing_date, auto_renew,
			payment_method, gateway_subscription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		s.Reference, s.CustomerID, s.PlanID, s.PlanName,
		s.Amount, s.Currency, s.BillingCycle,
		s.Status, s.StartDate, s.EndDate, s.TrialEndDate, s.NextBillingDate, s.AutoRenew,
		s.PaymentMethod, s.GatewaySubscriptionID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *SubscriptionRepository) FindByReference(ctx context.Context, reference string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE reference = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, reference))
}

func (r *SubscriptionRepository) FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE gateway_subscription_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, gatewaySubscriptionID))
}

func (r *SubscriptionRepository) FindLiveByCustomerAndPlan(ctx context.Context, customerID, planID int64) (*subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE customer_id = $1 AND plan_id = $2 AND status IN ('trial', 'active')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, customerID, planID))
}

func (r *SubscriptionRepository) Update(ctx context.Context, s *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			plan_name = $2, amount = $3, currency = $4, billing_cycle = $5,
			status = $6, start_date = $7, end_date = $8,
			trial_end_date = $9, next_billing_date = $10, auto_renew = $11,
			cancelled_at = $12, cancellation_reason = $13,
			refund_amount = $14, refund_status = $15,
			payment_method = $16, gateway_subscription_id = $17,
			updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		s.ID, s.PlanName, s.Amount, s.Currency, s.BillingCycle,
		s.Status, s.StartDate, s.EndDate,
		s.TrialEndDate, s.NextBillingDate, s.AutoRenew,
		s.CancelledAt, s.CancellationReason,
		s.RefundAmount, s.RefundStatus,
		s.PaymentMethod, s.GatewaySubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, customerID int64, filters *subscription.ListFilters) ([]subscription.Subscription, int64, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE customer_id = $1`
	countQuery := `SELECT COUNT(*) FROM subscriptions WHERE customer_id = $1`
	args := []interface{}{customerID}

	if filters != nil && filters.Status != "" {
		args = append(args, filters.Status)
		cond := fmt.Sprintf(` AND status = $%d`, len(args))
		query += cond
		countQuery += cond
	}
	if filters != nil && filters.PlanID > 0 {
		args = append(args, filters.PlanID)
		cond := fmt.Sprintf(` AND plan_id = $%d`, len(args))
		query += cond
		countQuery += cond
	}

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	query += ` ORDER BY created_at DESC`
	if filters != nil && filters.PageSize > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, filters.PageSize, (page-1)*filters.PageSize)
	}

	subs, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *SubscriptionRepository) ListActiveByPlan(ctx context.Context, planID int64) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE plan_id = $1 AND status = 'active'`
	return r.list(ctx, query, planID)
}

func (r *SubscriptionRepository) ListExpiredActive(ctx context.Context, asOf time.Time) ([]subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status = 'active' AND end_date < $1`
	return r.list(ctx, query, asOf)
}

func (r *SubscriptionRepository) ListDueForBilling(ctx context.Context, asOf time.Time) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND auto_renew = true AND next_billing_date <= $1
	`
	return r.list(ctx, query, asOf)
}

func (r *SubscriptionRepository) CountByStatus(ctx context.Context) (*subscription.Counts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM subscriptions
	`
	var counts subscription.Counts
	if err := r.db.QueryRow(ctx, query).Scan(&counts.Total, &counts.Active, &counts.Cancelled); err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return &counts, nil
}

func (r *SubscriptionRepository) DeleteCancelledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM subscriptions WHERE status = 'cancelled' AND cancelled_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old subscriptions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SubscriptionRepository) list(ctx context.Context, query string, args ...interface{}) ([]subscription.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []subscription.Subscription
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*subscription.Subscription, error) {
	s, err := r.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	return s, err
}

func (r *SubscriptionRepository) scan(row rowScanner) (*subscription.Subscription, error) {
	var s subscription.Subscription
	err := row.Scan(
		&s.ID, &s.Reference, &s.CustomerID, &s.PlanID, &s.PlanName,
		&s.Amount, &s.Currency, &s.BillingCycle,
		&s.Status, &s.StartDate, &s.EndDate, &s.TrialEndDate, &s.NextBillingDate, &s.AutoRenew,
		&s.CancelledAt, &s.CancellationReason, &s.RefundAmount, &s.RefundStatus,
		&s.PaymentMethod, &s.GatewaySubscriptionID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &s, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GreaZeY/bms/internal/domain/plan"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, code, name, description, price, currency,
	billing_cycle, trial_days, auto_renew,
	visibility, is_active, gateway_plan_id,
	created_at, updated_at
`

func (r *PlanRepository) Create(ctx context.Context, p *plan.Plan, allowedCustomerIDs []int64) error {
	query := `
		INSERT INTO plans (
			code, name, description, price, currency,
			billing_cycle, trial_days, auto_renew,
			visibility, is_active, gateway_plan_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, query,
		p.Code, p.Name, p.Description, p.Price, p.Currency,
		p.BillingCycle, p.TrialDays, p.AutoRenew,
		p.Visibility, p.IsActive, p.GatewayPlanID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	for _, customerID := range allowedCustomerIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO plan_customers (plan_id, customer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			p.ID, customerID,
		); err != nil {
			return fmt.Errorf("failed to add plan customer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *PlanRepository) FindByCode(ctx context.Context, code string) (*plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE code = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

func (r *PlanRepository) List(ctx context.Context, filters *plan.ListFilters) ([]plan.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE 1=1`
	args := []interface{}{}

	if filters != nil && filters.ActiveOnly {
		query += ` AND is_active = true`
	}
	if filters != nil && filters.CustomerID > 0 {
		args = append(args, filters.CustomerID)
		query += fmt.Sprintf(` AND (visibility = 'all_customers' OR id IN (
			SELECT plan_id FROM plan_customers WHERE customer_id = $%d))`, len(args))
	}
	query += ` ORDER BY price ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans SET
			name = $2, description = $3, price = $4,
			billing_cycle = $5, visibility = $6, is_active = $7,
			gateway_plan_id = $8, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.Price,
		p.BillingCycle, p.Visibility, p.IsActive, p.GatewayPlanID,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PlanRepository) AllowedCustomerIDs(ctx context.Context, planID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT customer_id FROM plan_customers WHERE plan_id = $1`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan customers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan plan customer: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PlanRepository) ReplaceAllowedCustomers(ctx context.Context, planID int64, customerIDs []int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM plan_customers WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("failed to clear plan customers: %w", err)
	}
	for _, customerID := range customerIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO plan_customers (plan_id, customer_id) VALUES ($1, $2)`,
			planID, customerID,
		); err != nil {
			return fmt.Errorf("failed to add plan customer: %w", err)
		}
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PlanRepository) scanOne(row pgx.Row) (*plan.Plan, error) {
	p, err := r.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	return p, err
}

func (r *PlanRepository) scan(row rowScanner) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Description, &p.Price, &p.Currency,
		&p.BillingCycle, &p.TrialDays, &p.AutoRenew,
		&p.Visibility, &p.IsActive, &p.GatewayPlanID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	return &p, nil
}

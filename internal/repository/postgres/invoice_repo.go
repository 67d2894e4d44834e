package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `
	id, reference, customer_id, subscription_id,
	amount, currency, invoice_date, due_date, period_start, status,
	created_at, updated_at
`

// CreateIfAbsent relies on the partial unique index on
// (subscription_id, period_start) WHERE status != 'cancelled'; the INSERT is
// the atomic create-if-absent and a lost race falls through to re-reading the
// winner's row.
func (r *InvoiceRepository) CreateIfAbsent(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO invoices (
			reference, customer_id, subscription_id,
			amount, currency, invoice_date, due_date, period_start, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		inv.Reference, inv.CustomerID, inv.SubscriptionID,
		inv.Amount, inv.Currency, inv.InvoiceDate, inv.DueDate, inv.PeriodStart, inv.Status,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race or the invoice predates this call.
		existing, ferr := r.FindOpenByCycle(ctx, inv.SubscriptionID, inv.PeriodStart)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		item.InvoiceID = inv.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO invoice_items (invoice_id, name, quantity, rate, amount)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.InvoiceID, item.Name, item.Quantity, item.Rate, item.Amount,
		).Scan(&item.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create invoice item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inv, true, nil
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id int64) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, inv)
}

func (r *InvoiceRepository) FindByReference(ctx context.Context, reference string) (*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE reference = $1`
	inv, err := r.scanOne(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, inv)
}

func (r *InvoiceRepository) FindOpenByCycle(ctx context.Context, subscriptionID int64, periodStart time.Time) (*invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE subscription_id = $1 AND period_start = $2 AND status != 'cancelled'
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, subscriptionID, periodStart))
}

func (r *InvoiceRepository) ListByCustomer(ctx context.Context, customerID int64) ([]invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, customerID)
}

func (r *InvoiceRepository) ListPastDue(ctx context.Context, asOf time.Time) ([]invoice.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE status IN ('draft', 'sent') AND due_date < $1
	`
	return r.list(ctx, query, asOf)
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `UPDATE invoices SET status = $2, due_date = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, inv.ID, inv.Status, inv.DueDate)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *InvoiceRepository) withItems(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, invoice_id, name, quantity, rate, amount FROM invoice_items WHERE invoice_id = $1`,
		inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item invoice.Item
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Name, &item.Quantity, &item.Rate, &item.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, rows.Err()
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...interface{}) ([]invoice.Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *InvoiceRepository) scanOne(row pgx.Row) (*invoice.Invoice, error) {
	inv, err := r.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	return inv, err
}

func (r *InvoiceRepository) scan(row rowScanner) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID, &inv.Reference, &inv.CustomerID, &inv.SubscriptionID,
		&inv.Amount, &inv.Currency, &inv.InvoiceDate, &inv.DueDate, &inv.PeriodStart, &inv.Status,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return &inv, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/GreaZeY/bms/internal/domain/payment"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, reference, customer_id, subscription_id, invoice_id,
	type, amount, currency, status, method,
	gateway_payment_id, gateway_order_id,
	source_payment_id, refund_reason, refunded_at,
	payment_date, created_at
`

const paymentInsert = `
	INSERT INTO payments (
		reference, customer_id, subscription_id, invoice_id,
		type, amount, currency, status, method,
		gateway_payment_id, gateway_order_id,
		source_payment_id, refund_reason, refunded_at, payment_date
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.db.QueryRow(ctx, paymentInsert+` RETURNING id, created_at`,
		p.Reference, p.CustomerID, p.SubscriptionID, p.InvoiceID,
		p.Type, p.Amount, p.Currency, p.Status, p.Method,
		p.GatewayPaymentID, p.GatewayOrderID,
		p.SourcePaymentID, p.RefundReason, p.RefundedAt, p.PaymentDate,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// CreateIfAbsent uses the unique index on gateway_payment_id as the atomic
// dedup gate for redelivered gateway events.
func (r *PaymentRepository) CreateIfAbsent(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	if !p.GatewayPaymentID.Valid {
		if err := r.Create(ctx, p); err != nil {
			return nil, false, err
		}
		return p, true, nil
	}

	// The conflict target repeats the partial index predicate so Postgres
	// can infer uq_payments_gateway_payment as the arbiter.
	err := r.db.QueryRow(ctx, paymentInsert+` ON CONFLICT (gateway_payment_id) WHERE gateway_payment_id IS NOT NULL DO NOTHING RETURNING id, created_at`,
		p.Reference, p.CustomerID, p.SubscriptionID, p.InvoiceID,
		p.Type, p.Amount, p.Currency, p.Status, p.Method,
		p.GatewayPaymentID, p.GatewayOrderID,
		p.SourcePaymentID, p.RefundReason, p.RefundedAt, p.PaymentDate,
	).Scan(&p.ID, &p.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, ferr := r.FindByGatewayPaymentID(ctx, p.GatewayPaymentID.String)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create payment: %w", err)
	}
	return p, true, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *PaymentRepository) FindByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, reference))
}

func (r *PaymentRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_payment_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, gatewayPaymentID))
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	query := `
		UPDATE payments SET
			status = $2, invoice_id = $3, refund_reason = $4, refunded_at = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, p.ID, p.Status, p.InvoiceID, p.RefundReason, p.RefundedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) ListByCustomer(ctx context.Context, customerID int64) ([]payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE customer_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, customerID)
}

func (r *PaymentRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE subscription_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, subscriptionID)
}

func (r *PaymentRepository) SummarizeSubscription(ctx context.Context, subscriptionID int64) (*payment.Summary, error) {
	return r.summarize(ctx, `subscription_id`, subscriptionID)
}

func (r *PaymentRepository) SummarizeCustomer(ctx context.Context, customerID int64) (*payment.Summary, error) {
	return r.summarize(ctx, `customer_id`, customerID)
}

func (r *PaymentRepository) summarize(ctx context.Context, column string, id int64) (*payment.Summary, error) {
	query := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE type = 'payment' AND status IN ('completed', 'refunded')), 0),
			COALESCE(SUM(-amount) FILTER (WHERE type = 'refund' AND status = 'completed'), 0)
		FROM payments
		WHERE %s = $1
	`, column)

	var s payment.Summary
	if err := r.db.QueryRow(ctx, query, id).Scan(&s.TotalPaid, &s.TotalRefunded); err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}
	s.Net = s.TotalPaid.Sub(s.TotalRefunded)
	return &s, nil
}

func (r *PaymentRepository) SumCompletedByInvoice(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE invoice_id = $1 AND type = 'payment' AND status IN ('completed', 'refunded')
	`
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, invoiceID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum invoice payments: %w", err)
	}
	return sum, nil
}

func (r *PaymentRepository) RevenueBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE type = 'payment' AND status IN ('completed', 'refunded')
		  AND payment_date >= $1 AND payment_date < $2
	`
	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, from, to).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return sum, nil
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]payment.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []payment.Payment
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepository) scanOne(row pgx.Row) (*payment.Payment, error) {
	p, err := r.scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	return p, err
}

func (r *PaymentRepository) scan(row rowScanner) (*payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(
		&p.ID, &p.Reference, &p.CustomerID, &p.SubscriptionID, &p.InvoiceID,
		&p.Type, &p.Amount, &p.Currency, &p.Status, &p.Method,
		&p.GatewayPaymentID, &p.GatewayOrderID,
		&p.SourcePaymentID, &p.RefundReason, &p.RefundedAt,
		&p.PaymentDate, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}

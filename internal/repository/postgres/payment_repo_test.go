package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreaZeY/bms/internal/domain/payment"
	"github.com/GreaZeY/bms/internal/pkg/ref"
)

// testPool connects to the database named by TEST_DATABASE_URL. The schema
// from migrations/ must already be applied.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

// seedSubscriptionRow inserts the customer, plan and subscription a payment
// row needs, and removes them again when the test ends.
func seedSubscriptionRow(t *testing.T, pool *pgxpool.Pool) (customerID, subscriptionID int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO customers (reference, name, email) VALUES ($1, $2, $3) RETURNING id`,
		ref.Customer(), "Asha", ref.Customer()+"@example.com",
	).Scan(&customerID))

	var planID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO plans (code, name, price, billing_cycle) VALUES ($1, 'Basic', 100, 'monthly') RETURNING id`,
		ref.New("PLN"),
	).Scan(&planID))

	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO subscriptions (
			reference, customer_id, plan_id, plan_name, amount, currency,
			billing_cycle, status, start_date, end_date
		) VALUES ($1, $2, $3, 'Basic', 100, 'INR', 'monthly', 'active', $4, $5) RETURNING id`,
		ref.Subscription(), customerID, planID,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	).Scan(&subscriptionID))

	t.Cleanup(func() {
		pool.Exec(ctx, `DELETE FROM payments WHERE subscription_id = $1`, subscriptionID)
		pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, subscriptionID)
		pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, planID)
		pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})
	return customerID, subscriptionID
}

// The gateway dedup index on payments is partial, so the INSERT's conflict
// target has to name its predicate for Postgres to accept the statement at
// all. This runs the statement for real: a bad arbiter fails on the first
// insert, not just on the duplicate.
func TestCreateIfAbsentDeduplicatesGatewayPaymentID(t *testing.T) {
	pool := testPool(t)
	customerID, subscriptionID := seedSubscriptionRow(t, pool)
	repo := NewPaymentRepository(pool)
	gatewayID := ref.New("paytest")

	build := func() *payment.Payment {
		return &payment.Payment{
			Reference:        ref.Payment(),
			CustomerID:       customerID,
			SubscriptionID:   subscriptionID,
			Type:             payment.TypePayment,
			Amount:           decimal.NewFromInt(100),
			Currency:         "INR",
			Status:           payment.StatusCompleted,
			Method:           "upi",
			GatewayPaymentID: sql.NullString{String: gatewayID, Valid: true},
			PaymentDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	first, created, err := repo.CreateIfAbsent(context.Background(), build())
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.CreateIfAbsent(context.Background(), build())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

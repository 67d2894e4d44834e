package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GreaZeY/bms/internal/domain/report"
)

type ReportRepository struct {
	db *pgxpool.Pool
}

func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) Create(ctx context.Context, rep *report.MonthlyReport) error {
	query := `
		INSERT INTO monthly_reports (
			kind, month, total_revenue,
			total_subscriptions, active_subscriptions, cancelled_subscriptions
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		rep.Kind, rep.Month, rep.TotalRevenue,
		rep.TotalSubscriptions, rep.ActiveSubscriptions, rep.CancelledSubscriptions,
	).Scan(&rep.ID, &rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

func (r *ReportRepository) ListByMonth(ctx context.Context, month string) ([]report.MonthlyReport, error) {
	query := `
		SELECT id, kind, month, total_revenue,
		       total_subscriptions, active_subscriptions, cancelled_subscriptions, created_at
		FROM monthly_reports
		WHERE month = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []report.MonthlyReport
	for rows.Next() {
		var rep report.MonthlyReport
		if err := rows.Scan(
			&rep.ID, &rep.Kind, &rep.Month, &rep.TotalRevenue,
			&rep.TotalSubscriptions, &rep.ActiveSubscriptions, &rep.CancelledSubscriptions,
			&rep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

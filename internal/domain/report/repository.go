package report

import "context"

type Repository interface {
	Create(ctx context.Context, r *MonthlyReport) error
	ListByMonth(ctx context.Context, month string) ([]MonthlyReport, error)
}

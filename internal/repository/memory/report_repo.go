package memory

import (
	"context"
	"time"

	"github.com/GreaZeY/bms/internal/domain/report"
)

type ReportRepository struct {
	store
	reports map[int64]*report.MonthlyReport
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{reports: make(map[int64]*report.MonthlyReport)}
}

func (r *ReportRepository) Create(_ context.Context, rep *report.MonthlyReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep.ID = r.id()
	rep.CreatedAt = time.Now()
	cp := *rep
	r.reports[rep.ID] = &cp
	return nil
}

func (r *ReportRepository) ListByMonth(_ context.Context, month string) ([]report.MonthlyReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []report.MonthlyReport
	for _, rep := range r.reports {
		if rep.Month == month {
			out = append(out, *rep)
		}
	}
	return out, nil
}

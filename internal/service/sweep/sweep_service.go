// Package sweep runs the scheduled maintenance passes: the daily pass that
// renews or expires subscriptions, flags overdue invoices and bills upcoming
// cycles, and the monthly pass that writes report rollups and prunes old
// cancelled subscriptions.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/invoice"
	"github.com/GreaZeY/bms/internal/domain/report"
	"github.com/GreaZeY/bms/internal/domain/subscription"
	"github.com/GreaZeY/bms/internal/service/reconciler"
	subscriptionsvc "github.com/GreaZeY/bms/internal/service/subscription"
)

// retentionPeriod is how long cancelled subscriptions are kept before the
// monthly sweep deletes them.
const retentionPeriod = 365 * 24 * time.Hour

// Notifier is the slice of the notification service the sweep needs.
type Notifier interface {
	InvoiceOverdue(ctx context.Context, inv *invoice.Invoice)
}

type Service struct {
	subscriptionRepo subscription.Repository
	invoiceRepo      invoice.Repository
	reportRepo       report.Repository
	subscriptions    *subscriptionsvc.Service
	reconciler       *reconciler.Service
	notifier         Notifier
	logger           *zap.Logger

	now func() time.Time
}

func NewService(
	subscriptionRepo subscription.Repository,
	invoiceRepo invoice.Repository,
	reportRepo report.Repository,
	subscriptions *subscriptionsvc.Service,
	rec *reconciler.Service,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscriptionRepo: subscriptionRepo,
		invoiceRepo:      invoiceRepo,
		reportRepo:       reportRepo,
		subscriptions:    subscriptions,
		reconciler:       rec,
		notifier:         notifier,
		logger:           logger,
		now:              time.Now,
	}
}

// DailyResult counts what one daily pass did.
type DailyResult struct {
	Renewed  int `json:"renewed"`
	Expired  int `json:"expired"`
	Overdue  int `json:"overdue"`
	Invoiced int `json:"invoiced"`
	Errors   int `json:"errors"`
}

// RunDaily walks every subscription past its end date and either renews it
// (auto-renew on) or expires it, then flags overdue invoices and creates
// invoices for cycles whose billing date has arrived. Each row is handled
// independently; one failure never stops the pass.
func (s *Service) RunDaily(ctx context.Context) (*DailyResult, error) {
	today := s.today()
	result := &DailyResult{}

	expired, err := s.subscriptionRepo.ListExpiredActive(ctx, today)
	if err != nil {
		return nil, err
	}
	for i := range expired {
		sub := &expired[i]
		if sub.AutoRenew && sub.BillingCycle.Months() > 0 {
			if _, err := s.subscriptions.Renew(ctx, sub.Reference); err != nil {
				s.logger.Error("renewal failed, expiring subscription",
					zap.String("subscription", sub.Reference), zap.Error(err))
				result.Errors++
				if err := s.subscriptions.Expire(ctx, sub.ID); err != nil {
					s.logger.Error("failed to expire subscription",
						zap.String("subscription", sub.Reference), zap.Error(err))
					continue
				}
				result.Expired++
				continue
			}
			result.Renewed++
			continue
		}

		if err := s.subscriptions.Expire(ctx, sub.ID); err != nil {
			s.logger.Error("failed to expire subscription",
				zap.String("subscription", sub.Reference), zap.Error(err))
			result.Errors++
			continue
		}
		result.Expired++
	}

	pastDue, err := s.invoiceRepo.ListPastDue(ctx, today)
	if err != nil {
		return result, err
	}
	for i := range pastDue {
		inv := &pastDue[i]
		inv.Status = invoice.StatusOverdue
		if err := s.invoiceRepo.Update(ctx, inv); err != nil {
			s.logger.Error("failed to mark invoice overdue",
				zap.String("invoice", inv.Reference), zap.Error(err))
			result.Errors++
			continue
		}
		result.Overdue++
		if s.notifier != nil {
			s.notifier.InvoiceOverdue(ctx, inv)
		}
	}

	due, err := s.subscriptionRepo.ListDueForBilling(ctx, today)
	if err != nil {
		return result, err
	}
	for i := range due {
		sub := &due[i]
		_, created, err := s.reconciler.EnsureInvoiceForCycle(ctx, sub)
		if err != nil {
			s.logger.Error("failed to invoice due subscription",
				zap.String("subscription", sub.Reference), zap.Error(err))
			result.Errors++
			continue
		}
		if created {
			result.Invoiced++
		}
	}

	s.logger.Info("daily sweep finished",
		zap.Int("renewed", result.Renewed),
		zap.Int("expired", result.Expired),
		zap.Int("overdue", result.Overdue),
		zap.Int("invoiced", result.Invoiced),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// MonthlyResult describes one monthly pass.
type MonthlyResult struct {
	Revenue      *report.MonthlyReport `json:"revenue"`
	Subscription *report.MonthlyReport `json:"subscription"`
	Pruned       int64                 `json:"pruned"`
}

// RunMonthly writes the previous month's revenue and subscription rollups
// and prunes subscriptions cancelled more than a year ago.
func (s *Service) RunMonthly(ctx context.Context) (*MonthlyResult, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	monthEnd := monthStart.AddDate(0, 1, 0)
	month := monthStart.Format("2006-01")

	revenue, err := s.reconciler.Revenue(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, err
	}
	revReport := &report.MonthlyReport{
		Kind:         report.KindRevenue,
		Month:        month,
		TotalRevenue: revenue,
	}
	if err := s.reportRepo.Create(ctx, revReport); err != nil {
		return nil, err
	}

	counts, err := s.subscriptionRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	subReport := &report.MonthlyReport{
		Kind:                   report.KindSubscription,
		Month:                  month,
		TotalSubscriptions:     counts.Total,
		ActiveSubscriptions:    counts.Active,
		CancelledSubscriptions: counts.Cancelled,
	}
	if err := s.reportRepo.Create(ctx, subReport); err != nil {
		return nil, err
	}

	pruned, err := s.subscriptionRepo.DeleteCancelledBefore(ctx, now.Add(-retentionPeriod))
	if err != nil {
		return nil, err
	}

	s.logger.Info("monthly sweep finished",
		zap.String("month", month),
		zap.String("revenue", revenue.String()),
		zap.Int64("pruned", pruned),
	)
	return &MonthlyResult{Revenue: revReport, Subscription: subReport, Pruned: pruned}, nil
}

// Reports returns the stored rollups for a YYYY-MM month.
func (s *Service) Reports(ctx context.Context, month string) ([]report.MonthlyReport, error) {
	return s.reportRepo.ListByMonth(ctx, month)
}

func (s *Service) today() time.Time {
	t := s.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

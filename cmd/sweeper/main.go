// The sweeper runs the scheduled billing passes: daily renewal/expiry and
// invoicing, monthly reports and retention pruning. It shares the API's
// storage but runs as its own process so a slow sweep never blocks requests.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/config"
	"github.com/GreaZeY/bms/internal/db"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/repository/postgres"
	"github.com/GreaZeY/bms/internal/service/email"
	notificationUsecase "github.com/GreaZeY/bms/internal/service/notification"
	reconcilerUsecase "github.com/GreaZeY/bms/internal/service/reconciler"
	subscriptionUsecase "github.com/GreaZeY/bms/internal/service/subscription"
	sweepUsecase "github.com/GreaZeY/bms/internal/service/sweep"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[SWEEPER] No .env file found, relying on system env vars")
	}
	cfg := config.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pool.Close()

	planRepo := postgres.NewPlanRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)

	emailSender := email.NewEmailSender(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass,
		cfg.SMTPFromName, cfg.SMTPSecure,
	)

	locks := keylock.New()
	reconcilerService := reconcilerUsecase.NewService(subscriptionRepo, invoiceRepo, paymentRepo, locks, logger)
	subscriptionService := subscriptionUsecase.NewService(
		subscriptionRepo, planRepo, customerRepo, paymentRepo,
		reconcilerService, nil, locks, logger,
	)
	notificationService := notificationUsecase.NewService(emailSender, customerRepo, logger)
	sweepService := sweepUsecase.NewService(
		subscriptionRepo, invoiceRepo, reportRepo,
		subscriptionService, reconcilerService, notificationService, logger,
	)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.DailyCron, func() {
		if _, err := sweepService.RunDaily(context.Background()); err != nil {
			logger.Error("daily sweep failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatalf("invalid daily cron spec %q: %v", cfg.DailyCron, err)
	}
	if _, err := scheduler.AddFunc(cfg.MonthlyCron, func() {
		if _, err := sweepService.RunMonthly(context.Background()); err != nil {
			logger.Error("monthly sweep failed", zap.Error(err))
		}
	}); err != nil {
		log.Fatalf("invalid monthly cron spec %q: %v", cfg.MonthlyCron, err)
	}

	scheduler.Start()
	logger.Info("sweeper started",
		zap.String("daily", cfg.DailyCron),
		zap.String("monthly", cfg.MonthlyCron),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := scheduler.Stop()
	<-ctx.Done()
	logger.Info("sweeper stopped")
}

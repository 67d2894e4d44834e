// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/config"
	"github.com/GreaZeY/bms/internal/db"
	"github.com/GreaZeY/bms/internal/gateway"
	adminHandler "github.com/GreaZeY/bms/internal/handlers/admin"
	billingHandler "github.com/GreaZeY/bms/internal/handlers/billing"
	planHandler "github.com/GreaZeY/bms/internal/handlers/plan"
	subscriptionHandler "github.com/GreaZeY/bms/internal/handlers/subscription"
	webhookHandler "github.com/GreaZeY/bms/internal/handlers/webhook"
	"github.com/GreaZeY/bms/internal/middleware"
	"github.com/GreaZeY/bms/internal/pkg/keylock"
	"github.com/GreaZeY/bms/internal/repository/postgres"
	"github.com/GreaZeY/bms/internal/service/email"
	notificationUsecase "github.com/GreaZeY/bms/internal/service/notification"
	planUsecase "github.com/GreaZeY/bms/internal/service/plan"
	reconcilerUsecase "github.com/GreaZeY/bms/internal/service/reconciler"
	subscriptionUsecase "github.com/GreaZeY/bms/internal/service/subscription"
	sweepUsecase "github.com/GreaZeY/bms/internal/service/sweep"
	webhookUsecase "github.com/GreaZeY/bms/internal/service/webhook"
)

type Server struct {
	cfg     config.AppConfig
	engine  *gin.Engine
	httpSrv *http.Server
	logger  *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB()
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- Redis -----
	// Redis only backs webhook dedup; storage-level natural keys still hold
	// when it is down, so a failed connection is not fatal.
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: s.cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Warn("redis unavailable, webhook dedup degraded", zap.Error(err))
		redisClient = nil
	} else {
		log.Println("[REDIS] connected")
	}

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Payment gateway -----
	gatewayClient := gateway.NewHTTPClient(
		s.cfg.GatewayBaseURL,
		s.cfg.GatewayKeyID,
		s.cfg.GatewayKeySecret,
		10*time.Second,
		logger,
	)

	// ----- Repositories -----
	planRepo := postgres.NewPlanRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)

	// ----- Services (Usecases) -----
	locks := keylock.New()
	reconcilerService := reconcilerUsecase.NewService(subscriptionRepo, invoiceRepo, paymentRepo, locks, logger)
	subscriptionService := subscriptionUsecase.NewService(
		subscriptionRepo,
		planRepo,
		customerRepo,
		paymentRepo,
		reconcilerService,
		gatewayClient,
		locks,
		logger,
	)
	planService := planUsecase.NewService(planRepo, subscriptionService, logger)
	notificationService := notificationUsecase.NewService(emailSender, customerRepo, logger)
	sweepService := sweepUsecase.NewService(
		subscriptionRepo,
		invoiceRepo,
		reportRepo,
		subscriptionService,
		reconcilerService,
		notificationService,
		logger,
	)
	webhookService := webhookUsecase.NewService(
		subscriptionRepo,
		subscriptionService,
		reconcilerService,
		redisClient,
		s.cfg.GatewayWebhookSecret,
		logger,
	)

	// ----- Handlers -----
	planHandlerInst := planHandler.NewPlanHandler(planService, logger)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(subscriptionService, logger)
	billingHandlerInst := billingHandler.NewBillingHandler(reconcilerService, logger)
	webhookHandlerInst := webhookHandler.NewWebhookHandler(webhookService, logger)
	adminHandlerInst := adminHandler.NewAdminHandler(sweepService, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(s.cfg.JWTSecret)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	// ----- Router -----
	handlers := &Handlers{
		PlanHandler:         planHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		BillingHandler:      billingHandlerInst,
		WebhookHandler:      webhookHandlerInst,
		AdminHandler:        adminHandlerInst,
		AuthMiddleware:      authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	logger.Info("server starting", zap.String("addr", s.cfg.HTTPAddr))
	s.httpSrv = &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.engine}
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Package webhook ingests payment gateway events: it authenticates each
// delivery, drops duplicates and translates event kinds into reconciler and
// subscription operations.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/GreaZeY/bms/internal/domain/subscription"
	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
	"github.com/GreaZeY/bms/internal/service/reconciler"
	subscriptionsvc "github.com/GreaZeY/bms/internal/service/subscription"
)

const dedupTTL = 24 * time.Hour

// Event is the gateway's webhook envelope. Only the fields the engine acts
// on are decoded; everything else in the payload is ignored.
type Event struct {
	Kind    string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Subscription struct {
			Entity SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

type PaymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	// Amount is in minor currency units, as the gateway reports it.
	Amount int64  `json:"amount"`
	Method string `json:"method"`
}

type SubscriptionEntity struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Service struct {
	subscriptionRepo subscription.Repository
	subscriptions    *subscriptionsvc.Service
	reconciler       *reconciler.Service
	redis            *redis.Client
	secret           string
	logger           *zap.Logger
}

func NewService(
	subscriptionRepo subscription.Repository,
	subscriptions *subscriptionsvc.Service,
	rec *reconciler.Service,
	redisClient *redis.Client,
	secret string,
	logger *zap.Logger,
) *Service {
	return &Service{
		subscriptionRepo: subscriptionRepo,
		subscriptions:    subscriptions,
		reconciler:       rec,
		redis:            redisClient,
		secret:           secret,
		logger:           logger,
	}
}

// Process handles one webhook delivery. The signature is checked over the
// raw body before anything is parsed; unsigned or tampered deliveries are
// rejected without side effects.
func (s *Service) Process(ctx context.Context, body []byte, signature string) error {
	if !s.verifySignature(body, signature) {
		return xerrors.ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed webhook body: %w", xerrors.ErrInvalidInput)
	}

	s.logger.Info("webhook received", zap.String("event", event.Kind))

	switch event.Kind {
	case "subscription.charged":
		return s.handleCharged(ctx, &event)
	case "subscription.completed":
		return s.mirror(ctx, &event, subscription.StatusCompleted)
	case "subscription.cancelled":
		return s.mirror(ctx, &event, subscription.StatusCancelled)
	case "subscription.paused":
		return s.mirror(ctx, &event, subscription.StatusPaused)
	case "subscription.resumed":
		return s.mirror(ctx, &event, subscription.StatusActive)
	default:
		s.logger.Info("ignoring webhook event", zap.String("event", event.Kind))
		return nil
	}
}

func (s *Service) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Service) handleCharged(ctx context.Context, event *Event) error {
	pay := event.Payload.Payment.Entity
	gwSubID := event.Payload.Subscription.Entity.ID
	if pay.ID == "" || gwSubID == "" {
		return fmt.Errorf("charged event missing payment or subscription id: %w", xerrors.ErrInvalidInput)
	}

	// Fast-path dedup of redelivered events. The unique gateway payment id
	// in storage is the real guarantee; this only saves the round trip.
	key := "webhook:payment:" + pay.ID
	if !s.claim(ctx, key) {
		s.logger.Info("duplicate webhook delivery skipped", zap.String("gateway_payment_id", pay.ID))
		return nil
	}

	sub, err := s.subscriptionRepo.FindByGatewayID(ctx, gwSubID)
	if err != nil {
		s.release(ctx, key)
		return fmt.Errorf("unknown gateway subscription %s: %w", gwSubID, err)
	}

	// The charge covers the subscription's current cycle; that cycle's
	// invoice must exist so the payment below settles it.
	if _, _, err := s.reconciler.EnsureInvoiceForCycle(ctx, sub); err != nil {
		s.release(ctx, key)
		return err
	}

	_, err = s.reconciler.RecordPayment(ctx, &reconciler.RecordPaymentInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.New(pay.Amount, -2),
		Method:           pay.Method,
		GatewayPaymentID: pay.ID,
		GatewayOrderID:   pay.OrderID,
	})
	if err != nil {
		s.release(ctx, key)
	}
	return err
}

func (s *Service) mirror(ctx context.Context, event *Event, next subscription.Status) error {
	gwSubID := event.Payload.Subscription.Entity.ID
	if gwSubID == "" {
		return fmt.Errorf("event missing subscription id: %w", xerrors.ErrInvalidInput)
	}

	_, err := s.subscriptions.MirrorGatewayStatus(ctx, gwSubID, next)
	if xerrors.Is(err, xerrors.ErrInvalidState) {
		// Redelivery after the status already moved on; acknowledge it.
		s.logger.Warn("gateway status not mirrored",
			zap.String("gateway_subscription_id", gwSubID),
			zap.String("status", string(next)),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// claim reserves the key for this delivery. When redis is down the claim
// always succeeds and storage-level dedup takes over.
func (s *Service) claim(ctx context.Context, key string) bool {
	if s.redis == nil {
		return true
	}
	ok, err := s.redis.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		s.logger.Warn("webhook dedup unavailable", zap.Error(err))
		return true
	}
	return ok
}

// release drops a claim after a failed delivery so the gateway's redelivery
// is processed instead of skipped.
func (s *Service) release(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("webhook dedup release failed", zap.String("key", key), zap.Error(err))
	}
}

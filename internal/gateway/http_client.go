package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

// HTTPClient talks to the gateway's REST API with basic auth and a bounded
// per-request timeout. Timeouts and 5xx responses surface as
// ErrGatewayUnavailable so callers can decide between retrying (sweep) and
// failing fast (interactive calls).
type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	logger    *zap.Logger
}

func NewHTTPClient(baseURL, keyID, keySecret string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (c *HTTPClient) CreatePlan(ctx context.Context, req *PlanRequest) (*Resource, error) {
	if req.ExternalID != "" {
		return c.FetchByID(ctx, "plans", req.ExternalID)
	}
	body := map[string]interface{}{
		"period":   "monthly",
		"interval": req.IntervalMonths,
		"item": map[string]interface{}{
			"name":     req.Name,
			"amount":   minorUnits(req.Amount),
			"currency": req.Currency,
		},
	}
	return c.post(ctx, "/plans", body)
}

func (c *HTTPClient) CreateCustomer(ctx context.Context, req *CustomerRequest) (*Resource, error) {
	if req.ExternalID != "" {
		return c.FetchByID(ctx, "customers", req.ExternalID)
	}
	body := map[string]interface{}{
		"name":          req.Name,
		"email":         req.Email,
		"fail_existing": "0",
	}
	return c.post(ctx, "/customers", body)
}

func (c *HTTPClient) CreateSubscription(ctx context.Context, req *SubscriptionRequest) (*Resource, error) {
	if req.ExternalID != "" {
		return c.FetchByID(ctx, "subscriptions", req.ExternalID)
	}
	body := map[string]interface{}{
		"plan_id":         req.PlanID,
		"customer_id":     req.CustomerID,
		"total_count":     req.TotalCount,
		"customer_notify": 1,
	}
	return c.post(ctx, "/subscriptions", body)
}

func (c *HTTPClient) CreateOrder(ctx context.Context, req *OrderRequest) (*Resource, error) {
	if req.ExternalID != "" {
		return c.FetchByID(ctx, "orders", req.ExternalID)
	}
	body := map[string]interface{}{
		"amount":   minorUnits(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	return c.post(ctx, "/orders", body)
}

// VerifyCheckoutSignature recomputes HMAC-SHA256(orderID|paymentID) with the
// API key secret and compares it to the checkout callback signature.
func (c *HTTPClient) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *HTTPClient) FetchByID(ctx context.Context, entity, id string) (*Resource, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+entity+"/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	return c.do(httpReq)
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]interface{}) (*Resource, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	return c.do(httpReq)
}

func (c *HTTPClient) do(req *http.Request) (*Resource, error) {
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("gateway request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", xerrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: gateway returned %d", xerrors.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("gateway rejected request: status %d", resp.StatusCode)
	}

	var res Resource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return &res, nil
}

// minorUnits converts a decimal amount into the gateway's integer minor-unit
// representation (e.g. cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

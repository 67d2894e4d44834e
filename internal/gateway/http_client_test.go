package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	xerrors "github.com/GreaZeY/bms/internal/pkg/errors"
)

func TestCreatePlanSendsMinorUnitsAndAuth(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)
		assert.Equal(t, "/plans", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(Resource{ID: "plan_1", Entity: "plan", Status: "created"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret", 0, zap.NewNop())
	res, err := c.CreatePlan(context.Background(), &PlanRequest{
		Name:           "Basic",
		Amount:         decimal.RequireFromString("99.99"),
		Currency:       "INR",
		IntervalMonths: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "plan_1", res.ID)

	item := got["item"].(map[string]interface{})
	assert.Equal(t, float64(9999), item["amount"])
}

func TestCreatePlanWithExternalIDFetchesInstead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/plans/plan_1", r.URL.Path)
		json.NewEncoder(w).Encode(Resource{ID: "plan_1", Entity: "plan"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s", 0, zap.NewNop())
	res, err := c.CreatePlan(context.Background(), &PlanRequest{ExternalID: "plan_1"})
	require.NoError(t, err)
	assert.Equal(t, "plan_1", res.ID)
}

func TestServerErrorsSurfaceAsGatewayUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s", 0, zap.NewNop())
	_, err := c.CreateOrder(context.Background(), &OrderRequest{
		Amount:   decimal.NewFromInt(10),
		Currency: "INR",
	})
	assert.ErrorIs(t, err, xerrors.ErrGatewayUnavailable)
}

func TestClientErrorsAreNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k", "s", 0, zap.NewNop())
	_, err := c.CreateCustomer(context.Background(), &CustomerRequest{Name: "A", Email: "a@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, xerrors.ErrGatewayUnavailable)
}

func TestVerifyCheckoutSignature(t *testing.T) {
	c := NewHTTPClient("http://unused", "key_id", "key_secret", 0, zap.NewNop())

	mac := hmac.New(sha256.New, []byte("key_secret"))
	mac.Write([]byte("order_1|pay_1"))
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, c.VerifyCheckoutSignature("order_1", "pay_1", valid))
	assert.False(t, c.VerifyCheckoutSignature("order_1", "pay_2", valid))
	assert.False(t, c.VerifyCheckoutSignature("order_1", "pay_1", "forged"))
}

package mercadopago

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := &Config{TestMode: true, TestAccessToken: "TEST-token", BaseURL: srv.URL}
	return NewClient(cfg, WithSleepFunc(func(time.Duration) {}))
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 123,
			"status": "approved",
			"external_reference": "plan_8a0f5c9e-2b1d-4c1e-9f3a-6d2b7e4a1c00_tier1",
			"metadata": {"type": "plan_subscription"},
			"additional_info": {"items": [{"id": "plan_tier1_monthly", "title": "Plan", "quantity": 1, "currency_id": "ARS", "unit_price": 4999}]},
			"transaction_amount": 4999
		}`))
	})

	p, err := c.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.True(t, p.Approved())
	assert.Equal(t, "123", p.IDString())
	assert.Equal(t, "plan_tier1_monthly", p.FirstItemID())
	assert.Equal(t, "plan_subscription", p.Metadata["type"])
	assert.EqualValues(t, 499900, MajorToMinor(p.TransactionAmount))
}

func TestGetPaymentRetriesOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": 7, "status": "pending"}`))
	})

	p, err := c.GetPayment(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestGetPaymentGivesUpAfterRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GetPayment(context.Background(), "7")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestGetPaymentNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Payment not found"}`))
	})

	_, err := c.GetPayment(context.Background(), "404")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCreatePreference(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))

		var req PreferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "pack_ref", req.ExternalReference)
		assert.Len(t, req.Items, 1)
		assert.InDelta(t, 12.0, req.MarketplaceFee, 0.001)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/init","sandbox_init_point":"https://sandbox/init"}`))
	})

	resp, err := c.CreatePreference(context.Background(), &PreferenceRequest{
		Items:             []Item{{ID: "p1", Title: "Drums", Quantity: 1, CurrencyID: CurrencyARS, UnitPrice: 80}},
		ExternalReference: "pack_ref",
		MarketplaceFee:    MinorToMajor(1200),
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", resp.ID)
	assert.Equal(t, "https://sandbox/init", resp.SandboxInitPoint)
}

func TestGetPaymentHonorsCanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetPayment(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMinorMajorConversion(t *testing.T) {
	assert.InDelta(t, 80.0, MinorToMajor(8000), 0.0001)
	assert.EqualValues(t, 8000, MajorToMinor(80.0))
	assert.EqualValues(t, 1999, MajorToMinor(19.99))
}

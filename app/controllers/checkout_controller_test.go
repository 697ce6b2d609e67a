package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
)

func TestCheckoutPackEndToEnd(t *testing.T) {
	env := newTestEnv(t, "")
	seller := env.seller("vendedor", "123456789")
	buyer := env.user("comprador")
	pack := env.pack(seller.ID, 10000, time.Now())
	status, body := env.do("POST", "/api/v1/packs/"+pack.ID+"/discounts", seller.ID, map[string]interface{}{
		"code": "verano20", "discount_percent": 20,
	})
	require.Equal(t, 201, status, body)

	status, body = env.do("POST", "/api/v1/checkout/pack", buyer.ID, map[string]interface{}{
		"pack_id": pack.ID, "discount_code": "VERANO20",
	})
	require.Equal(t, 201, status, body)
	assert.Equal(t, "https://mp.test/init", body["init_point"])
	breakdown := body["breakdown"].(map[string]interface{})
	assert.EqualValues(t, 8000, breakdown["final_price"])
	assert.EqualValues(t, 1200, breakdown["platform_commission"])
	assert.EqualValues(t, 6800, breakdown["seller_earnings"])

	require.Len(t, env.gateway.created, 1)
	pref := env.gateway.created[0]
	assert.Equal(t, int64(123456789), pref.CollectorID)
	assert.Equal(t, 80.0, pref.Items[0].UnitPrice)

	// the gateway echoes the preference on the approved payment
	env.gateway.add(&mercadopago.Payment{
		ID:                3001,
		Status:            mercadopago.StatusApproved,
		ExternalReference: pref.ExternalReference,
		Metadata:          pref.Metadata,
		TransactionAmount: pref.Items[0].UnitPrice,
	})
	status, body = postWebhook(env, `{"id":1,"type":"payment","data":{"id":"3001"}}`, "", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "purchased", body["outcome"])

	status, body = env.do("GET", "/api/v1/me/purchases", buyer.ID, nil)
	require.Equal(t, 200, status)
	purchases := body["purchases"].([]interface{})
	require.Len(t, purchases, 1)
	p := purchases[0].(map[string]interface{})
	assert.EqualValues(t, 8000, p["amount_paid"])
	assert.EqualValues(t, 1200, p["platform_commission"])

	status, body = env.do("GET", "/api/v1/me/sales", seller.ID, nil)
	require.Equal(t, 200, status)
	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 1, summary["count"])
	assert.EqualValues(t, 6800, summary["seller_earnings"])
}

func TestCheckoutPackErrors(t *testing.T) {
	env := newTestEnv(t, "")
	seller := env.seller("vendedor", "123")
	unpaid := env.user("sincuenta")
	buyer := env.user("comprador")
	pack := env.pack(seller.ID, 10000, time.Now())
	unpaidPack := env.pack(unpaid.ID, 10000, time.Now())

	status, body := env.do("POST", "/api/v1/checkout/pack", "", map[string]interface{}{"pack_id": pack.ID})
	assert.Equal(t, 401, status)

	status, body = env.do("POST", "/api/v1/checkout/pack", buyer.ID, map[string]interface{}{"pack_id": "no-uuid"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "validation_failed", body["error"])

	status, body = env.do("POST", "/api/v1/checkout/pack", buyer.ID, map[string]interface{}{"pack_id": unpaidPack.ID})
	assert.Equal(t, 403, status)
	assert.Equal(t, "forbidden_seller_not_payable", body["error"])

	status, body = env.do("POST", "/api/v1/checkout/pack", buyer.ID, map[string]interface{}{"pack_id": pack.ID, "discount_code": "NOEXISTE"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "validation_discount_rejected", body["error"])

	env.gateway.err = &mercadopago.APIError{Status: 500, Body: "boom"}
	status, body = env.do("POST", "/api/v1/checkout/pack", buyer.ID, map[string]interface{}{"pack_id": pack.ID})
	assert.Equal(t, 502, status)
	assert.Equal(t, "upstream_payment_failed", body["error"])
	assert.NotContains(t, body["message"], "boom")
}

func TestCheckoutPlanAndActivation(t *testing.T) {
	env := newTestEnv(t, "")
	user := env.user("productora")

	status, body := env.do("POST", "/api/v1/checkout/plan", user.ID, map[string]interface{}{"plan": "platino"})
	assert.Equal(t, 400, status)
	assert.Equal(t, "validation_invalid_plan", body["error"])

	status, body = env.do("POST", "/api/v1/checkout/plan", user.ID, map[string]interface{}{"plan": "tier1_monthly"})
	require.Equal(t, 201, status, body)
	pref := env.gateway.created[0]
	assert.Equal(t, 4999.0, pref.Items[0].UnitPrice)

	env.gateway.add(&mercadopago.Payment{
		ID:                4001,
		Status:            mercadopago.StatusApproved,
		ExternalReference: pref.ExternalReference,
		Metadata:          pref.Metadata,
		TransactionAmount: pref.Items[0].UnitPrice,
	})
	status, body = postWebhook(env, `{"id":2,"type":"payment","data":{"id":"4001"}}`, "", nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "plan_activated", body["outcome"])

	status, body = env.do("GET", "/api/v1/me/plan", user.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "tier1", body["plan"])
	assert.NotNil(t, body["expires_at"])
	limits := body["limits"].(map[string]interface{})
	assert.EqualValues(t, 1000, limits["commission_bps"])
}

func TestPlansAndAccount(t *testing.T) {
	env := newTestEnv(t, "")
	user := env.user("productora")
	env.pack(user.ID, 1000, time.Now())

	status, body := env.do("GET", "/api/v1/plans", "", nil)
	require.Equal(t, 200, status)
	all := body["plans"].([]interface{})
	require.Len(t, all, 3)
	assert.Equal(t, "free", all[0].(map[string]interface{})["plan"])

	status, body = env.do("GET", "/api/v1/me/plan", user.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "free", body["plan"])
	assert.Nil(t, body["expires_at"])

	status, body = env.do("GET", "/api/v1/me", user.ID, nil)
	require.Equal(t, 200, status)
	packs := body["stats"].(map[string]interface{})["packs"].(map[string]interface{})
	assert.EqualValues(t, 1, packs["live"])
	assert.EqualValues(t, 2, packs["remaining"])

	status, body = env.do("POST", "/api/v1/me/api-key", user.ID, nil)
	require.Equal(t, 201, status)
	key := body["api_key"].(string)
	stored, err := env.repos.User.GetByAPIKeyHash(models.HashAPIKey(key))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestSellerAccountUpsert(t *testing.T) {
	env := newTestEnv(t, "")
	user := env.user("productora")

	status, body := env.do("GET", "/api/v1/me/seller-account", user.ID, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, false, body["payable"])

	status, body = env.do("PUT", "/api/v1/me/seller-account", user.ID, map[string]interface{}{"provider_account_id": "abc"})
	assert.Equal(t, 400, status)

	status, body = env.do("PUT", "/api/v1/me/seller-account", user.ID, map[string]interface{}{
		"provider_account_id": "987654", "email": "Cobros@Arsound.test",
	})
	require.Equal(t, 200, status, body)
	assert.Equal(t, true, body["payable"])

	status, body = env.do("PUT", "/api/v1/me/seller-account", user.ID, map[string]interface{}{"provider_account_id": "111"})
	require.Equal(t, 200, status)

	account, err := env.repos.SellerAccount.GetByUserID(user.ID, models.ProviderMercadoPago)
	require.NoError(t, err)
	assert.Equal(t, "111", account.ProviderAccountID)
}

package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/apperr"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// paymentFromPreference simulates the gateway echoing a preference back on
// the payment it produced.
func paymentFromPreference(t *testing.T, id int64, req *mercadopago.PreferenceRequest) *mercadopago.Payment {
	t.Helper()
	raw, err := json.Marshal(req.Metadata)
	require.NoError(t, err)
	var md map[string]any
	require.NoError(t, json.Unmarshal(raw, &md))

	return &mercadopago.Payment{
		ID:                id,
		Status:            mercadopago.StatusApproved,
		ExternalReference: req.ExternalReference,
		Metadata:          md,
		AdditionalInfo:    mercadopago.AdditionalInfo{Items: req.Items},
		TransactionAmount: req.Items[0].UnitPrice,
	}
}

func purchaseCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&n).Error)
	return n
}

func TestReconcileEndToEndPackPurchase(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	registry := plans.NewRegistry()
	repo := NewRepository(db)
	gateway := newFakeGateway()

	seller := createSeller(t, db, "seller", "123456789")
	buyer := createUser(t, db, "buyer")
	pack := createPack(t, db, seller.ID, 10000, time.Now())
	createCode(t, db, pack.ID, "VERANO20", 20, nil)

	builder := NewPreferenceBuilder(repo, registry, NewDiscountResolver(repo), DefaultURLs("https://arsound.test"))
	result, err := NewCheckout(builder, gateway).Pack(ctx, PackCheckout{
		BuyerID: buyer.ID, BuyerEmail: buyer.Email, PackID: pack.ID, DiscountCode: "verano20",
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", result.PreferenceID)
	require.Len(t, gateway.created, 1)

	gateway.add(paymentFromPreference(t, 5550001, gateway.created[0]))
	reconciler := NewReconciler(repo, gateway, registry)

	outcome, err := reconciler.Reconcile(ctx, "5550001")
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, outcome)

	var purchase models.Purchase
	require.NoError(t, db.Where("gateway_payment_id = ?", "5550001").First(&purchase).Error)
	assert.EqualValues(t, 10000, purchase.BaseAmount)
	assert.EqualValues(t, 2000, purchase.DiscountAmount)
	assert.EqualValues(t, 8000, purchase.AmountPaid)
	assert.EqualValues(t, 1200, purchase.PlatformCommission)
	assert.EqualValues(t, 6800, purchase.SellerEarnings)
	assert.Equal(t, buyer.ID, purchase.BuyerID)
	assert.Equal(t, seller.ID, purchase.SellerID)
	assert.NotEmpty(t, purchase.PurchaseCode)
	require.NotNil(t, purchase.DiscountCodeID)

	var downloads int64
	require.NoError(t, db.Model(&models.Download{}).Where("user_id = ? AND pack_id = ?", buyer.ID, pack.ID).Count(&downloads).Error)
	assert.EqualValues(t, 1, downloads)

	var stored models.Pack
	require.NoError(t, db.First(&stored, "id = ?", pack.ID).Error)
	assert.EqualValues(t, 1, stored.DownloadCount)
}

func TestReconcileIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	gateway := newFakeGateway()
	seller := createSeller(t, db, "seller", "1")
	buyer := createUser(t, db, "buyer")
	pack := createPack(t, db, seller.ID, 5000, time.Now())

	gateway.add(&mercadopago.Payment{
		ID:                77,
		Status:            mercadopago.StatusApproved,
		ExternalReference: "pack_" + buyer.ID + "_" + pack.ID,
		TransactionAmount: 50,
	})
	reconciler := NewReconciler(repo, gateway, plans.NewRegistry())

	outcome, err := reconciler.Reconcile(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, outcome)

	outcome, err = reconciler.Reconcile(ctx, "77")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.EqualValues(t, 1, purchaseCount(t, db))
	var stored models.Pack
	require.NoError(t, db.First(&stored, "id = ?", pack.ID).Error)
	assert.EqualValues(t, 1, stored.DownloadCount)
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	gateway := newFakeGateway()
	seller := createSeller(t, db, "seller", "1")
	buyer := createUser(t, db, "buyer")
	pack := createPack(t, db, seller.ID, 5000, time.Now())
	gateway.add(&mercadopago.Payment{
		ID:                88,
		Status:            mercadopago.StatusApproved,
		ExternalReference: "pack_" + buyer.ID + "_" + pack.ID,
		TransactionAmount: 50,
	})
	reconciler := NewReconciler(repo, gateway, plans.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := reconciler.Reconcile(ctx, "88")
			assert.NoError(t, err)
			assert.Contains(t, []Outcome{OutcomePurchased, OutcomeDuplicate}, outcome)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, purchaseCount(t, db))
	var stored models.Pack
	require.NoError(t, db.First(&stored, "id = ?", pack.ID).Error)
	assert.EqualValues(t, 1, stored.DownloadCount)
}

func TestReconcileRecomputesWithoutMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	gateway := newFakeGateway()
	seller := createSeller(t, db, "seller", "1")
	setPlan(t, db, seller.ID, "tier1")
	buyer := createUser(t, db, "buyer")
	pack := createPack(t, db, seller.ID, 10000, time.Now())

	gateway.add(&mercadopago.Payment{
		ID:                99,
		Status:            mercadopago.StatusApproved,
		ExternalReference: "pack_" + buyer.ID + "_" + pack.ID,
		// Buyer paid 75.00 after a discount the metadata no longer describes.
		TransactionAmount: 75,
		Metadata:          map[string]any{"final_price": 7500},
	})

	outcome, err := NewReconciler(repo, gateway, plans.NewRegistry()).Reconcile(ctx, "99")
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, outcome)

	var purchase models.Purchase
	require.NoError(t, db.Where("gateway_payment_id = ?", "99").First(&purchase).Error)
	assert.EqualValues(t, 10000, purchase.BaseAmount)
	assert.EqualValues(t, 2500, purchase.DiscountAmount)
	assert.EqualValues(t, 7500, purchase.AmountPaid)
	assert.EqualValues(t, 750, purchase.PlatformCommission)
	assert.EqualValues(t, 6750, purchase.SellerEarnings)
}

func TestReconcileIgnoresUnapproved(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	gateway.add(&mercadopago.Payment{ID: 5, Status: mercadopago.StatusPending})

	outcome, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, purchaseCount(t, db))
}

func TestReconcileUnresolvableIntent(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	gateway.add(&mercadopago.Payment{ID: 6, Status: mercadopago.StatusApproved, ExternalReference: "order-6"})

	_, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "6")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnresolvableIntent))
	assert.False(t, IsRetryable(err))
}

func TestReconcileGatewayFailureIsRetryable(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	gateway.err = &mercadopago.APIError{Status: 503}

	_, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "7")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	gateway.err = errors.New("boom")
	_, err = NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "7")
	assert.True(t, IsRetryable(err))
}

func activePlans(t *testing.T, db *gorm.DB, userID string) []models.UserPlan {
	t.Helper()
	var rows []models.UserPlan
	require.NoError(t, db.Where("user_id = ? AND is_active = ?", userID, true).Find(&rows).Error)
	return rows
}

func planPayment(id int64, userID, key string) *mercadopago.Payment {
	return &mercadopago.Payment{
		ID:                id,
		Status:            mercadopago.StatusApproved,
		ExternalReference: "plan_" + userID + "_" + key,
		TransactionAmount: mercadopago.MinorToMajor(plans.NewRegistry().Limits(key).MonthlyPrice),
	}
}

func TestReconcilePlanActivation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	gateway := newFakeGateway()
	user := createUser(t, db, "producer")
	reconciler := NewReconciler(repo, gateway, plans.NewRegistry())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reconciler.now = func() time.Time { return fixed }

	gateway.add(planPayment(1001, user.ID, "tier1_monthly"))
	outcome, err := reconciler.Reconcile(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, OutcomePlanActivated, outcome)

	rows := activePlans(t, db, user.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "tier1", rows[0].PlanType)
	require.NotNil(t, rows[0].ExpiresAt)
	assert.True(t, rows[0].ExpiresAt.Equal(fixed.Add(30*24*time.Hour)))

	outcome, err = reconciler.Reconcile(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	var total int64
	require.NoError(t, db.Model(&models.UserPlan{}).Where("user_id = ?", user.ID).Count(&total).Error)
	assert.EqualValues(t, 1, total)

	gateway.add(planPayment(1002, user.ID, "tier2"))
	_, err = reconciler.Reconcile(ctx, "1002")
	require.NoError(t, err)
	rows = activePlans(t, db, user.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "tier2", rows[0].PlanType)
}

func TestReconcilePlanDowngradeArchivesThenUpgradeRestores(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	gateway := newFakeGateway()
	user := createUser(t, db, "producer")
	setPlan(t, db, user.ID, "tier2")
	packs := seedPacks(t, db, user.ID, 12)
	reconciler := NewReconciler(repo, gateway, plans.NewRegistry())

	// A direct downgrade to free happens when an admin grants it, not via
	// checkout, but the reconciler accepts it like any plan payment.
	gateway.add(planPayment(2001, user.ID, "free"))
	_, err := reconciler.Reconcile(ctx, "2001")
	require.NoError(t, err)

	assert.Equal(t, []string{packs[11].ID, packs[10].ID, packs[9].ID}, liveIDs(t, db, user.ID))
	rows := activePlans(t, db, user.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, "free", rows[0].PlanType)

	gateway.add(planPayment(2002, user.ID, "tier1"))
	_, err = reconciler.Reconcile(ctx, "2002")
	require.NoError(t, err)
	assert.Len(t, liveIDs(t, db, user.ID), 10)
}

func TestReconcileUnknownPlanIsUnresolvable(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	gateway.add(planPayment(3001, uuid.NewString(), "platinum"))

	_, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "3001")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnresolvableIntent))
}

func TestReconcileUnderpaidPlanIsNotActivated(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	user := createUser(t, db, "producer")
	payment := planPayment(4001, user.ID, "tier2")
	payment.TransactionAmount = 1
	gateway.add(payment)

	_, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(context.Background(), "4001")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnderpaid))
	assert.False(t, IsRetryable(err))
	assert.Empty(t, activePlans(t, db, user.ID))
}

func TestReconcileDropsDeletedDiscountCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	registry := plans.NewRegistry()
	repo := NewRepository(db)
	gateway := newFakeGateway()

	seller := createSeller(t, db, "seller", "123")
	buyer := createUser(t, db, "buyer")
	pack := createPack(t, db, seller.ID, 10000, time.Now())
	code := createCode(t, db, pack.ID, "BORRADO", 20, nil)

	builder := NewPreferenceBuilder(repo, registry, NewDiscountResolver(repo), DefaultURLs("https://arsound.test"))
	_, err := NewCheckout(builder, gateway).Pack(ctx, PackCheckout{
		BuyerID: buyer.ID, BuyerEmail: buyer.Email, PackID: pack.ID, DiscountCode: "borrado",
	})
	require.NoError(t, err)
	require.NoError(t, db.Delete(&models.DiscountCode{}, code.ID).Error)

	gateway.add(paymentFromPreference(t, 4101, gateway.created[0]))
	outcome, err := NewReconciler(repo, gateway, registry).Reconcile(ctx, "4101")
	require.NoError(t, err)
	assert.Equal(t, OutcomePurchased, outcome)

	var purchase models.Purchase
	require.NoError(t, db.Where("gateway_payment_id = ?", "4101").First(&purchase).Error)
	assert.Nil(t, purchase.DiscountCodeID)
	assert.EqualValues(t, 8000, purchase.AmountPaid)
	assert.EqualValues(t, 2000, purchase.DiscountAmount)
}

func TestReconcileIgnoresCallerCancellation(t *testing.T) {
	db := newTestDB(t)
	gateway := newFakeGateway()
	user := createUser(t, db, "producer")
	gateway.add(planPayment(4201, user.ID, "tier1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := NewReconciler(NewRepository(db), gateway, plans.NewRegistry()).Reconcile(ctx, "4201")
	require.NoError(t, err)
	assert.Equal(t, OutcomePlanActivated, outcome)
	assert.Len(t, activePlans(t, db, user.ID), 1)
}

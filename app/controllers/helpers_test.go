package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/app/repository"
	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/jobqueue"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
	"github.com/arsound/arsound/internal/pkg/plans"
	"github.com/arsound/arsound/internal/pkg/storage"
	"github.com/arsound/arsound/internal/pkg/testutil"
	"github.com/arsound/arsound/internal/pkg/usercontext"
)

const testUserHeader = "X-Test-User"

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*mercadopago.Payment
	err      error
	created  []*mercadopago.PreferenceRequest
}

func (g *fakeGateway) add(p *mercadopago.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.IDString()] = p
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &mercadopago.APIError{Status: 404, Body: "not found"}
	}
	return p, nil
}

func (g *fakeGateway) CreatePreference(ctx context.Context, req *mercadopago.PreferenceRequest) (*mercadopago.PreferenceResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, req)
	return &mercadopago.PreferenceResponse{ID: "pref-test", InitPoint: "https://mp.test/init"}, nil
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobqueue.ReconcilePaymentPayload
}

func (q *fakeQueue) EnqueueReconcile(ctx context.Context, paymentID string, eventID uint) (*jobqueue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, jobqueue.ReconcilePaymentPayload{PaymentID: paymentID, EventID: eventID})
	return &jobqueue.Job{ID: "job-test"}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignUpload(ctx context.Context, key string, size int64) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{URL: "https://s3.test/" + key, Method: http.MethodPut}, nil
}

func (fakePresigner) PresignDownload(ctx context.Context, key, fileName string) (*storage.PresignedRequest, error) {
	return &storage.PresignedRequest{URL: "https://s3.test/" + key, Method: http.MethodGet}, nil
}

type fakeViews struct {
	mu    sync.Mutex
	views map[string]int
}

func (v *fakeViews) AddPackView(ctx context.Context, packID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.views[packID]++
	return nil
}

// testEnv wires the controllers against sqlite and in-memory fakes. Requests
// authenticate with the X-Test-User header instead of an API key.
type testEnv struct {
	t       *testing.T
	db      *gorm.DB
	repos   *repository.Repositories
	app     *fiber.App
	gateway *fakeGateway
	queue   *fakeQueue
	views   *fakeViews
	service *billing.Service
	packs   *PackController
}

func newTestEnv(t *testing.T, webhookSecret string) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	repos := repository.NewRepositories(db)
	registry := plans.NewRegistry()
	billingRepo := billing.NewRepository(db)
	gateway := &fakeGateway{payments: map[string]*mercadopago.Payment{}}
	queue := &fakeQueue{}
	views := &fakeViews{views: map[string]int{}}

	discounts := billing.NewDiscountResolver(billingRepo)
	builder := billing.NewPreferenceBuilder(billingRepo, registry, discounts, billing.DefaultURLs("https://arsound.test"))
	service := billing.NewService(billingRepo, billing.NewReconciler(billingRepo, gateway, registry))

	env := &testEnv{t: t, db: db, repos: repos, gateway: gateway, queue: queue, views: views, service: service}
	env.packs = NewPackController(repos, registry, service, fakePresigner{}, views)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get(testUserHeader); id != "" {
			u, err := repos.User.GetByID(id)
			if err != nil {
				return err
			}
			usercontext.Set(c, usercontext.UserContext{
				UserID:     u.ID,
				Username:   u.Name,
				Email:      u.Email,
				IsLoggedIn: true,
				IsAdmin:    u.Role == models.ROLE_ADMIN,
			})
		}
		return c.Next()
	})

	webhooks := NewWebhookController(service, queue, webhookSecret)
	checkout := NewCheckoutController(billing.NewCheckout(builder, gateway))
	planCtl := NewPlanController(registry, service)
	purchases := NewPurchaseController(repos)
	discountCtl := NewDiscountController(repos, registry, service, discounts)
	social := NewSocialController(repos)
	account := NewAccountController(repos, registry, service)
	admin := NewAdminController(service)

	app.Post("/api/webhooks/mercadopago", webhooks.HandleMercadoPago)
	v1 := app.Group("/api/v1")
	v1.Get("/plans", planCtl.HandleList)
	v1.Get("/me", account.HandleGetUserAccount)
	v1.Post("/me/api-key", account.HandleRotateAPIKey)
	v1.Get("/me/plan", planCtl.HandleCurrent)
	v1.Get("/me/purchases", purchases.HandleMyPurchases)
	v1.Get("/me/sales", purchases.HandleMySales)
	v1.Get("/me/seller-account", purchases.HandleGetSellerAccount)
	v1.Put("/me/seller-account", purchases.HandleUpsertSellerAccount)
	v1.Get("/me/packs", env.packs.HandleMine)
	v1.Post("/checkout/pack", checkout.HandlePack)
	v1.Post("/checkout/plan", checkout.HandlePlan)
	v1.Get("/packs", env.packs.HandleList)
	v1.Post("/packs", env.packs.HandleCreate)
	v1.Get("/packs/:id", env.packs.HandleGet)
	v1.Patch("/packs/:id", env.packs.HandleUpdate)
	v1.Delete("/packs/:id", env.packs.HandleDelete)
	v1.Post("/packs/:id/archive", env.packs.HandleArchive)
	v1.Post("/packs/:id/unarchive", env.packs.HandleUnarchive)
	v1.Post("/packs/:id/upload-url", env.packs.HandleUploadURL)
	v1.Get("/packs/:id/download-url", env.packs.HandleDownloadURL)
	v1.Get("/packs/:id/discounts", discountCtl.HandleList)
	v1.Post("/packs/:id/discounts", discountCtl.HandleCreate)
	v1.Post("/packs/:id/discounts/validate", discountCtl.HandleValidate)
	v1.Delete("/packs/:id/discounts/:codeID", discountCtl.HandleDelete)
	v1.Post("/packs/:id/like", social.HandleToggleLike)
	v1.Get("/packs/:id/comments", social.HandleListComments)
	v1.Post("/packs/:id/comments", social.HandleAddComment)
	v1.Post("/users/:userID/follow", social.HandleFollow)
	v1.Delete("/users/:userID/follow", social.HandleUnfollow)
	adminGroup := v1.Group("/admin", RequireAdmin)
	adminGroup.Get("/payment-events", admin.HandleListEvents)
	adminGroup.Post("/payment-events/:id/reprocess", admin.HandleReprocessEvent)

	env.app = app
	return env
}

func (e *testEnv) user(name string) *models.User {
	e.t.Helper()
	u, err := models.CreateUser(name, name+"@arsound.test")
	require.NoError(e.t, err)
	require.NoError(e.t, e.repos.User.Create(u))
	return u
}

func (e *testEnv) seller(name, collectorID string) *models.User {
	e.t.Helper()
	u := e.user(name)
	require.NoError(e.t, e.repos.SellerAccount.Upsert(&models.SellerAccount{
		UserID: u.ID, Provider: models.ProviderMercadoPago, ProviderAccountID: collectorID,
	}))
	return u
}

func (e *testEnv) pack(ownerID string, price int64, createdAt time.Time) *models.Pack {
	e.t.Helper()
	p := &models.Pack{OwnerID: ownerID, Title: "Pack de prueba", Genre: "Trap", Price: price, CreatedAt: createdAt}
	require.NoError(e.t, e.repos.Pack.Create(p))
	return p
}

func (e *testEnv) setPlan(userID, plan string) {
	e.t.Helper()
	now := time.Now()
	expires := now.Add(billing.PlanPeriod)
	require.NoError(e.t, e.db.Create(&models.UserPlan{
		UserID: userID, PlanType: plan, IsActive: true, StartedAt: &now, ExpiresAt: &expires,
	}).Error)
}

// do sends a request as userID ("" for anonymous) and decodes a JSON response
// into a map.
func (e *testEnv) do(method, path, userID string, body interface{}) (int, map[string]interface{}) {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	return e.send(req)
}

func (e *testEnv) send(req *http.Request) (int, map[string]interface{}) {
	e.t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/mercadopago"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Name: name, Email: name + "@arsound.test", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createSeller(t *testing.T, db *gorm.DB, name, collectorID string) *models.User {
	t.Helper()
	u := createUser(t, db, name)
	require.NoError(t, db.Create(&models.SellerAccount{
		UserID:            u.ID,
		Provider:          models.ProviderMercadoPago,
		ProviderAccountID: collectorID,
	}).Error)
	return u
}

func createPack(t *testing.T, db *gorm.DB, ownerID string, price int64, createdAt time.Time) *models.Pack {
	t.Helper()
	p := &models.Pack{ID: uuid.NewString(), OwnerID: ownerID, Title: "Pack " + createdAt.Format("15:04"), Price: price, CreatedAt: createdAt}
	require.NoError(t, db.Create(p).Error)
	return p
}

func setPlan(t *testing.T, db *gorm.DB, userID, plan string) {
	t.Helper()
	now := time.Now()
	expires := now.Add(PlanPeriod)
	require.NoError(t, db.Create(&models.UserPlan{
		UserID: userID, PlanType: plan, IsActive: true, StartedAt: &now, ExpiresAt: &expires,
	}).Error)
}

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*mercadopago.Payment
	fetches  int
	err      error
	created  []*mercadopago.PreferenceRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*mercadopago.Payment{}}
}

func (g *fakeGateway) add(p *mercadopago.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.IDString()] = p
}

func (g *fakeGateway) GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
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
	return &mercadopago.PreferenceResponse{ID: "pref-1", InitPoint: "https://mp/init", SandboxInitPoint: "https://sandbox/init"}, nil
}

package billing

import (
	"context"
	"errors"
	"time"

	"github.com/arsound/arsound/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service. Methods
// called on the Repository passed to Transaction run inside that transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	// Webhook ledger
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
	GetPaymentEvent(ctx context.Context, id uint) (*models.PaymentEvent, error)
	ListPaymentEvents(ctx context.Context, failedOnly bool, limit int) ([]models.PaymentEvent, error)

	// Catalog
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetPack(ctx context.Context, id string) (*models.Pack, error)
	GetPackUnscoped(ctx context.Context, id string) (*models.Pack, error)
	GetSellerAccount(ctx context.Context, userID string) (*models.SellerAccount, error)

	// Discounts
	FindDiscountCode(ctx context.Context, packID, code string) (*models.DiscountCode, error)
	RedeemDiscountCode(ctx context.Context, id uint) (bool, error)
	ReleaseDiscountCode(ctx context.Context, id uint) error
	DiscountCodeForPack(ctx context.Context, id uint, packID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	HasCompletedPurchase(ctx context.Context, buyerID string) (bool, error)

	// Purchases
	CreatePurchaseIfNotExists(ctx context.Context, p *models.Purchase) (bool, error)
	GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*models.Purchase, error)
	CreateDownload(ctx context.Context, d *models.Download) error
	IncrementDownloadCount(ctx context.Context, packID string) error

	// Plans
	GetActivePlan(ctx context.Context, userID string) (*models.UserPlan, error)
	ClaimPlanPayment(ctx context.Context, row *models.UserPlan) (bool, error)
	ActivatePlan(ctx context.Context, userID string, rowID uint, startedAt, expiresAt time.Time) error

	// Downgrade retention
	ListLivePacks(ctx context.Context, ownerID string) ([]models.Pack, error)
	ListDowngradeArchived(ctx context.Context, ownerID string) ([]models.Pack, error)
	ArchivePacks(ctx context.Context, ids []string, reason string, at time.Time) error
	UnarchivePacks(ctx context.Context, ids []string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"outcome":          outcome,
		"attempts":         gorm.Expr("attempts + 1"),
	}
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetPaymentEvent(ctx context.Context, id uint) (*models.PaymentEvent, error) {
	var e models.PaymentEvent
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) ListPaymentEvents(ctx context.Context, failedOnly bool, limit int) ([]models.PaymentEvent, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if failedOnly {
		q = q.Where("processing_error <> ''")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.PaymentEvent
	return events, q.Find(&events).Error
}

func (r *gormRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetPack(ctx context.Context, id string) (*models.Pack, error) {
	var p models.Pack
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPackUnscoped also finds soft-deleted packs, for payments that complete
// after the seller removed the listing.
func (r *gormRepository) GetPackUnscoped(ctx context.Context, id string) (*models.Pack, error) {
	var p models.Pack
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetSellerAccount(ctx context.Context, userID string) (*models.SellerAccount, error) {
	var a models.SellerAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, models.ProviderMercadoPago).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) FindDiscountCode(ctx context.Context, packID, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := r.db.WithContext(ctx).
		Where("pack_id = ? AND code = ?", packID, models.NormalizeDiscountCode(code)).
		First(&dc).Error
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

// RedeemDiscountCode increments uses_count only while below max_uses. It
// reports false when another redemption took the last use.
func (r *gormRepository) RedeemDiscountCode(ctx context.Context, id uint) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND (max_uses IS NULL OR uses_count < max_uses)", id).
		UpdateColumn("uses_count", gorm.Expr("uses_count + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// ReleaseDiscountCode gives back one use taken by RedeemDiscountCode.
func (r *gormRepository) ReleaseDiscountCode(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND uses_count > 0", id).
		UpdateColumn("uses_count", gorm.Expr("uses_count - 1")).Error
}

func (r *gormRepository) DiscountCodeForPack(ctx context.Context, id uint, packID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND pack_id = ?", id, packID).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) HasCompletedPurchase(ctx context.Context, buyerID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Where("buyer_id = ? AND status = ?", buyerID, models.PurchaseStatusCompleted).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) CreatePurchaseIfNotExists(ctx context.Context, p *models.Purchase) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_payment_id"}},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) GetPurchaseByPaymentID(ctx context.Context, paymentID string) (*models.Purchase, error) {
	var p models.Purchase
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", paymentID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreateDownload(ctx context.Context, d *models.Download) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormRepository) IncrementDownloadCount(ctx context.Context, packID string) error {
	return r.db.WithContext(ctx).Unscoped().Model(&models.Pack{}).
		Where("id = ?", packID).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// GetActivePlan returns the active plan row, or nil when the user has none.
func (r *gormRepository) GetActivePlan(ctx context.Context, userID string) (*models.UserPlan, error) {
	var p models.UserPlan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("started_at DESC, id DESC").
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ClaimPlanPayment inserts an inactive plan row keyed by its gateway payment
// id. It reports false when the payment was already claimed.
func (r *gormRepository) ClaimPlanPayment(ctx context.Context, row *models.UserPlan) (bool, error) {
	row.IsActive = false
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_payment_id"}},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ActivatePlan(ctx context.Context, userID string, rowID uint, startedAt, expiresAt time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.UserPlan{}).
		Where("user_id = ? AND id <> ? AND is_active = ?", userID, rowID, true).
		Update("is_active", false).Error; err != nil {
		return err
	}
	tx := db.Model(&models.UserPlan{}).
		Where("id = ? AND user_id = ?", rowID, userID).
		Updates(map[string]any{"is_active": true, "started_at": startedAt, "expires_at": expiresAt})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) ListLivePacks(ctx context.Context, ownerID string) ([]models.Pack, error) {
	var packs []models.Pack
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_archived = ?", ownerID, false).
		Order("created_at DESC, id DESC").
		Find(&packs).Error
	return packs, err
}

func (r *gormRepository) ListDowngradeArchived(ctx context.Context, ownerID string) ([]models.Pack, error) {
	var packs []models.Pack
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND is_archived = ? AND archived_reason = ?", ownerID, true, models.ArchivedReasonDowngrade).
		Order("created_at DESC, id DESC").
		Find(&packs).Error
	return packs, err
}

func (r *gormRepository) ArchivePacks(ctx context.Context, ids []string, reason string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Pack{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_archived": true, "archived_reason": reason, "archived_at": at, "is_pinned": false}).Error
}

func (r *gormRepository) UnarchivePacks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Pack{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_archived": false, "archived_reason": "", "archived_at": nil}).Error
}

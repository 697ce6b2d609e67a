package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arsound/arsound/app/models"
)

type purchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

func page(offset, limit int) (int, int) {
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

// ListByBuyer includes packs deleted after the sale so the library stays complete.
func (r *purchaseRepository) ListByBuyer(buyerID string, offset, limit int) ([]models.Purchase, error) {
	offset, limit = page(offset, limit)
	var purchases []models.Purchase
	err := r.db.Preload("Pack", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&purchases).Error
	return purchases, err
}

func (r *purchaseRepository) ListBySeller(sellerID string, offset, limit int) ([]models.Purchase, error) {
	offset, limit = page(offset, limit)
	var purchases []models.Purchase
	err := r.db.Preload("Pack", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&purchases).Error
	return purchases, err
}

func (r *purchaseRepository) SalesSummary(sellerID string) (*SalesSummary, error) {
	var s SalesSummary
	err := r.db.Model(&models.Purchase{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount_paid),0) AS gross, COALESCE(SUM(platform_commission),0) AS commission, COALESCE(SUM(seller_earnings),0) AS seller_earnings").
		Where("seller_id = ? AND status = ?", sellerID, models.PurchaseStatusCompleted).
		Scan(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *purchaseRepository) HasPurchased(buyerID, packID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Purchase{}).
		Where("buyer_id = ? AND pack_id = ? AND status = ?", buyerID, packID, models.PurchaseStatusCompleted).
		Count(&count).Error
	return count > 0, err
}

type sellerAccountRepository struct {
	db *gorm.DB
}

func NewSellerAccountRepository(db *gorm.DB) SellerAccountRepository {
	return &sellerAccountRepository{db: db}
}

func (r *sellerAccountRepository) GetByUserID(userID, provider string) (*models.SellerAccount, error) {
	var acc models.SellerAccount
	if err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// Upsert creates or replaces the account for (user, provider).
func (r *sellerAccountRepository) Upsert(account *models.SellerAccount) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider_account_id", "email", "updated_at"}),
	}).Create(account).Error
}

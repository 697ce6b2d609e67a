package repository

import (
	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
)

type discountCodeRepository struct {
	db *gorm.DB
}

func NewDiscountCodeRepository(db *gorm.DB) DiscountCodeRepository {
	return &discountCodeRepository{db: db}
}

// Create stores a code; the code is normalized to upper case first.
func (r *discountCodeRepository) Create(code *models.DiscountCode) error {
	code.Code = models.NormalizeDiscountCode(code.Code)
	return r.db.Create(code).Error
}

func (r *discountCodeRepository) GetByID(id uint) (*models.DiscountCode, error) {
	var code models.DiscountCode
	if err := r.db.First(&code, id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *discountCodeRepository) GetByPackAndCode(packID, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := r.db.Where("pack_id = ? AND code = ?", packID, models.NormalizeDiscountCode(code)).First(&dc).Error
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (r *discountCodeRepository) ListByPack(packID string) ([]models.DiscountCode, error) {
	var codes []models.DiscountCode
	err := r.db.Where("pack_id = ?", packID).Order("created_at DESC").Find(&codes).Error
	return codes, err
}

// Delete removes a code. Purchases that used it keep their amounts and lose the reference.
func (r *discountCodeRepository) Delete(id uint) error {
	return r.db.Delete(&models.DiscountCode{}, id).Error
}

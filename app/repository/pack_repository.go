package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/arsound/arsound/app/models"
)

const maxPageSize = 100

type packRepository struct {
	db *gorm.DB
}

// NewPackRepository creates a new pack repository instance
func NewPackRepository(db *gorm.DB) PackRepository {
	return &packRepository{db: db}
}

func (r *packRepository) Create(pack *models.Pack) error {
	return r.db.Create(pack).Error
}

// GetByID returns a non-deleted pack with its owner, archived or not.
func (r *packRepository) GetByID(id string) (*models.Pack, error) {
	var pack models.Pack
	if err := r.db.Preload("Owner").Where("id = ?", id).First(&pack).Error; err != nil {
		return nil, err
	}
	return &pack, nil
}

// Update writes only the given columns.
func (r *packRepository) Update(pack *models.Pack, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.Model(pack).Updates(fields).Error
}

// Delete soft deletes a pack. Purchases keep pointing at the row.
func (r *packRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.Pack{}).Error
}

func (r *packRepository) ListByOwner(ownerID string, includeArchived bool) ([]models.Pack, error) {
	var packs []models.Pack
	q := r.db.Where("owner_id = ?", ownerID)
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}
	err := q.Order("is_pinned DESC").Order("created_at DESC").Find(&packs).Error
	return packs, err
}

// ListPublic returns live packs for the catalog and the total match count.
func (r *packRepository) ListPublic(filter PackFilter) ([]models.Pack, int64, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	scope := func() *gorm.DB {
		q := r.db.Model(&models.Pack{}).Where("is_archived = ?", false)
		if g := strings.TrimSpace(filter.Genre); g != "" {
			q = q.Where("LOWER(genre) = ?", strings.ToLower(g))
		}
		if s := strings.TrimSpace(filter.Query); s != "" {
			pattern := "%" + strings.ToLower(s) + "%"
			q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", pattern, pattern)
		}
		if filter.OwnerID != "" {
			q = q.Where("owner_id = ?", filter.OwnerID)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var packs []models.Pack
	err := scope().Preload("Owner").Order("created_at DESC").Offset(offset).Limit(limit).Find(&packs).Error
	return packs, total, err
}

// CountLiveByOwner counts published, non-archived packs against the total quota.
func (r *packRepository) CountLiveByOwner(ownerID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Pack{}).Where("owner_id = ? AND is_archived = ?", ownerID, false).Count(&count).Error
	return count, err
}

// CountCreatedSince includes deleted packs so delete-and-recreate cannot
// reset the monthly quota.
func (r *packRepository) CountCreatedSince(ownerID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Unscoped().Model(&models.Pack{}).Where("owner_id = ? AND created_at >= ?", ownerID, since).Count(&count).Error
	return count, err
}

func (r *packRepository) CountPinned(ownerID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Pack{}).Where("owner_id = ? AND is_pinned = ?", ownerID, true).Count(&count).Error
	return count, err
}

// RecordDownload logs a download that did not come from a purchase and bumps
// the pack's counter.
func (r *packRepository) RecordDownload(userID, packID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Download{UserID: userID, PackID: packID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Pack{}).Where("id = ?", packID).
			UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
	})
}

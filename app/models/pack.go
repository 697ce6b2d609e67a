package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ArchivedReasonDowngrade = "plan_downgrade"
	ArchivedReasonOwner     = "owner"
)

// Pack is a sellable sample pack. Prices are integer minor units.
type Pack struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OwnerID         string         `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Owner           User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title           string         `gorm:"type:varchar(200);not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Genre           string         `gorm:"type:varchar(50);index" json:"genre"`
	Price           int64          `gorm:"not null;default:0" json:"price"`
	HasDiscount     bool           `gorm:"default:false" json:"has_discount"`
	DiscountPercent int            `gorm:"default:0" json:"discount_percent"`
	FileKey         string         `gorm:"type:varchar(255)" json:"-"`
	FileSize        int64          `gorm:"default:0" json:"file_size"`
	ExternalLink    string         `gorm:"type:varchar(500)" json:"external_link,omitempty"`
	IsPinned        bool           `gorm:"default:false" json:"is_pinned"`
	IsArchived      bool           `gorm:"default:false;index" json:"is_archived"`
	ArchivedReason  string         `gorm:"type:varchar(30)" json:"archived_reason,omitempty"`
	ArchivedAt      *time.Time     `gorm:"type:timestamp;default:null" json:"archived_at,omitempty"`
	DownloadCount   int64          `gorm:"default:0" json:"download_count"`
	ViewCount       int64          `gorm:"default:0" json:"view_count"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Pack) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ListPrice is the price shown to buyers: the base price with the seller's
// own sale percentage applied, floored.
func (p *Pack) ListPrice() int64 {
	if !p.HasDiscount || p.DiscountPercent <= 0 {
		return p.Price
	}
	return ApplyPercentOff(p.Price, p.DiscountPercent)
}

// ApplyPercentOff returns floor(amount * (100 - percent) / 100).
func ApplyPercentOff(amount int64, percent int) int64 {
	if percent <= 0 {
		return amount
	}
	if percent >= 100 {
		return 0
	}
	return amount * int64(100-percent) / 100
}

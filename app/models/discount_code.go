package models

import (
	"strings"
	"time"
)

// DiscountCode is a seller-issued code for one pack. MaxUses nil means
// unlimited.
type DiscountCode struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	PackID           string     `gorm:"type:varchar(36);not null;index:ux_discount_codes_pack_code,unique,priority:1" json:"pack_id"`
	Code             string     `gorm:"type:varchar(50);not null;index:ux_discount_codes_pack_code,unique,priority:2" json:"code"`
	DiscountPercent  int        `gorm:"not null" json:"discount_percent"`
	ExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	MaxUses          *int       `json:"max_uses,omitempty"`
	UsesCount        int        `gorm:"not null;default:0" json:"uses_count"`
	ForAllUsers      bool       `gorm:"not null" json:"for_all_users"`
	ForFirstPurchase bool       `gorm:"default:false" json:"for_first_purchase"`
	ForFollowers     bool       `gorm:"default:false" json:"for_followers"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NormalizeDiscountCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func (d *DiscountCode) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && d.ExpiresAt.Before(now)
}

func (d *DiscountCode) Exhausted() bool {
	return d.MaxUses != nil && d.UsesCount >= *d.MaxUses
}

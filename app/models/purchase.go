package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PurchaseStatusCompleted = "completed"
	PurchaseStatusRefunded  = "refunded"
)

// Purchase is written once per approved payment and never updated.
// Amounts are minor units: PlatformCommission + SellerEarnings == AmountPaid.
type Purchase struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	BuyerID            string    `gorm:"type:varchar(36);not null;index" json:"buyer_id"`
	SellerID           string    `gorm:"type:varchar(36);not null;index" json:"seller_id"`
	PackID             string    `gorm:"type:varchar(36);not null;index" json:"pack_id"`
	Pack               *Pack     `gorm:"foreignKey:PackID" json:"pack,omitempty"`
	AmountPaid         int64     `gorm:"not null" json:"amount_paid"`
	BaseAmount         int64     `gorm:"not null" json:"base_amount"`
	DiscountAmount     int64     `gorm:"not null;default:0" json:"discount_amount"`
	PlatformCommission int64     `gorm:"not null" json:"platform_commission"`
	SellerEarnings     int64     `gorm:"not null" json:"seller_earnings"`
	GatewayPaymentID   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"gateway_payment_id"`
	Status             string    `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	PurchaseCode       string    `gorm:"type:varchar(20);uniqueIndex" json:"purchase_code"`
	DiscountCodeID     *uint     `json:"discount_code_id,omitempty"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Download records that a user obtained a pack, through a purchase or
// otherwise.
type Download struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	PackID     string    `gorm:"type:varchar(36);not null;index" json:"pack_id"`
	PurchaseID *string   `gorm:"type:varchar(36);index" json:"purchase_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

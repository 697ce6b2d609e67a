package models

import (
	"strings"
	"time"
)

const ProviderMercadoPago = "mercadopago"

// SellerAccount is the payment-routing identity of a seller at the gateway.
type SellerAccount struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"type:varchar(36);index:ux_seller_accounts_user_provider,unique,priority:1" json:"user_id"`
	Provider          string    `gorm:"type:varchar(20);not null;index:ux_seller_accounts_user_provider,unique,priority:2" json:"provider"`
	ProviderAccountID string    `gorm:"type:varchar(191);not null;default:''" json:"provider_account_id"`
	Email             string    `gorm:"type:varchar(200)" json:"email"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPayable reports whether the gateway can route funds to this account.
func (s *SellerAccount) IsPayable() bool {
	return s != nil && strings.TrimSpace(s.ProviderAccountID) != ""
}

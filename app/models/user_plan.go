package models

import "time"

// UserPlan is one subscription period. At most one row per user is active.
// GatewayPaymentID is unique so a replayed payment cannot activate twice.
type UserPlan struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	PlanType         string     `gorm:"type:varchar(20);not null" json:"plan_type"`
	IsActive         bool       `gorm:"default:false;index" json:"is_active"`
	StartedAt        *time.Time `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	ExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	GatewayPaymentID *string    `gorm:"type:varchar(64);uniqueIndex" json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the row is active and not expired at now.
func (p *UserPlan) IsCurrent(now time.Time) bool {
	if p == nil || !p.IsActive {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

package models

import "time"

const (
	OutcomePurchased     = "purchased"
	OutcomePlanActivated = "plan_activated"
	OutcomeDuplicate     = "duplicate"
	OutcomeIgnored       = "ignored"
	OutcomeRejected      = "rejected"
)

// PaymentEvent stores gateway webhook deliveries with deduplication metadata
// for idempotent processing.
type PaymentEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_events_provider_event,unique,priority:2" json:"provider_event_id"`
	PaymentID       string     `gorm:"type:varchar(64);index" json:"payment_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Outcome         string     `gorm:"type:varchar(30)" json:"outcome"`
	Attempts        int        `gorm:"default:0" json:"attempts"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Failed reports whether the last processing attempt ended with an error.
func (e *PaymentEvent) Failed() bool {
	return e.ProcessingError != ""
}

// AllModels lists every table the application owns.
func AllModels() []any {
	return []any{
		&User{},
		&SellerAccount{},
		&UserPlan{},
		&Pack{},
		&Purchase{},
		&Download{},
		&DiscountCode{},
		&Follow{},
		&Like{},
		&Comment{},
		&PaymentEvent{},
	}
}

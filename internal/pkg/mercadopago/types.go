package mercadopago

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	StatusApproved  = "approved"
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusInProcess = "in_process"
	StatusRefunded  = "refunded"
	StatusCancelled = "cancelled"
)

const (
	CurrencyARS        = "ARS"
	AutoReturnApproved = "approved"
)

// Item is a checkout line item. UnitPrice is in major units as the gateway
// expects; use MinorToMajor to convert.
type Item struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type Payer struct {
	Email string `json:"email,omitempty"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body of POST /checkout/preferences.
type PreferenceRequest struct {
	Items             []Item         `json:"items"`
	Payer             *Payer         `json:"payer,omitempty"`
	BackURLs          BackURLs       `json:"back_urls"`
	AutoReturn        string         `json:"auto_return,omitempty"`
	NotificationURL   string         `json:"notification_url,omitempty"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	MarketplaceFee    float64        `json:"marketplace_fee,omitempty"`
	CollectorID       int64          `json:"collector_id,omitempty"`
}

type PreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type AdditionalInfo struct {
	Items []Item `json:"items"`
}

// Payment is the subset of GET /v1/payments/{id} the reconciler reads.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata"`
	AdditionalInfo    AdditionalInfo `json:"additional_info"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id"`
	Payer             Payer          `json:"payer"`
	CollectorID       int64          `json:"collector_id"`
	DateApproved      *time.Time     `json:"date_approved"`
}

func (p *Payment) IDString() string {
	return strconv.FormatInt(p.ID, 10)
}

func (p *Payment) Approved() bool {
	return p.Status == StatusApproved
}

// FirstItemID returns the id of the first line item, or "".
func (p *Payment) FirstItemID() string {
	if len(p.AdditionalInfo.Items) == 0 {
		return ""
	}
	return p.AdditionalInfo.Items[0].ID
}

// MinorToMajor converts integer centavos to the gateway's decimal amount.
func MinorToMajor(minor int64) float64 {
	return float64(minor) / 100
}

// MajorToMinor converts a gateway amount to centavos, rounding to nearest.
func MajorToMinor(major float64) int64 {
	if major < 0 {
		return -int64(-major*100 + 0.5)
	}
	return int64(major*100 + 0.5)
}

// Notification is the webhook body the gateway posts.
type Notification struct {
	ID       json.Number `json:"id"`
	Type     string      `json:"type"`
	Action   string      `json:"action"`
	LiveMode bool        `json:"live_mode"`
	Data     struct {
		ID string `json:"id"`
	} `json:"data"`
}

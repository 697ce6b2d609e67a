package billing

import (
	"github.com/arsound/arsound/app/models"
)

// Outcome is the result of reconciling one payment.
type Outcome string

const (
	OutcomePurchased     Outcome = models.OutcomePurchased
	OutcomePlanActivated Outcome = models.OutcomePlanActivated
	OutcomeDuplicate     Outcome = models.OutcomeDuplicate
	OutcomeIgnored       Outcome = models.OutcomeIgnored
)

// Intent types as written into preference metadata.
const (
	MetadataTypePack = "pack_purchase"
	MetadataTypePlan = "plan_subscription"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	PaymentID       string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// PackCheckout asks for a checkout of one pack.
type PackCheckout struct {
	BuyerID      string
	BuyerEmail   string
	PackID       string
	DiscountCode string
}

// PlanCheckout asks for a checkout of one month of a plan.
type PlanCheckout struct {
	UserID  string
	Email   string
	PlanKey string
}

// CheckoutResult is what the client needs to redirect the buyer.
type CheckoutResult struct {
	PreferenceID     string    `json:"preference_id"`
	InitPoint        string    `json:"init_point"`
	SandboxInitPoint string    `json:"sandbox_init_point,omitempty"`
	Breakdown        Breakdown `json:"breakdown"`
}

package billing

import (
	"encoding/json"
	"strconv"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// Breakdown is the price split of one sale in minor units.
// Commission + SellerEarnings == FinalPrice and
// BaseAmount - DiscountAmount == FinalPrice.
type Breakdown struct {
	BaseAmount      int64 `json:"base_amount"`
	DiscountPercent int   `json:"discount_percent"`
	DiscountAmount  int64 `json:"discount_amount"`
	FinalPrice      int64 `json:"final_price"`
	Commission      int64 `json:"platform_commission"`
	SellerEarnings  int64 `json:"seller_earnings"`
}

// Commission is floor(amount * rate). Negative amounts count as zero.
func Commission(amount int64, limits plans.Limits) int64 {
	if amount <= 0 || limits.CommissionBps <= 0 {
		return 0
	}
	return amount * limits.CommissionBps / 10000
}

// SellerEarnings is the remainder after commission, so it absorbs rounding.
func SellerEarnings(amount int64, limits plans.Limits) int64 {
	if amount <= 0 {
		return 0
	}
	return amount - Commission(amount, limits)
}

// Split computes the commission split of an undiscounted amount.
func Split(amount int64, limits plans.Limits) Breakdown {
	return Price(amount, 0, limits)
}

// Price applies a percent discount to base and splits the result.
func Price(base int64, discountPercent int, limits plans.Limits) Breakdown {
	if base < 0 {
		base = 0
	}
	final := models.ApplyPercentOff(base, discountPercent)
	return Breakdown{
		BaseAmount:      base,
		DiscountPercent: discountPercent,
		DiscountAmount:  base - final,
		FinalPrice:      final,
		Commission:      Commission(final, limits),
		SellerEarnings:  SellerEarnings(final, limits),
	}
}

// Consistent reports whether the breakdown satisfies its invariants.
func (b Breakdown) Consistent() bool {
	if b.BaseAmount < 0 || b.DiscountAmount < 0 || b.FinalPrice < 0 || b.Commission < 0 || b.SellerEarnings < 0 {
		return false
	}
	return b.Commission+b.SellerEarnings == b.FinalPrice &&
		b.BaseAmount-b.DiscountAmount == b.FinalPrice
}

// Metadata renders the breakdown into gateway metadata keys.
func (b Breakdown) Metadata() map[string]any {
	return map[string]any{
		"base_amount":         b.BaseAmount,
		"discount_percent":    b.DiscountPercent,
		"discount_amount":     b.DiscountAmount,
		"final_price":         b.FinalPrice,
		"platform_commission": b.Commission,
		"seller_earnings":     b.SellerEarnings,
	}
}

// BreakdownFromMetadata reads a breakdown back from gateway metadata. It
// reports false when any amount is missing or the numbers do not add up.
func BreakdownFromMetadata(md map[string]any) (Breakdown, bool) {
	var b Breakdown
	fields := []struct {
		key string
		dst *int64
	}{
		{"base_amount", &b.BaseAmount},
		{"discount_amount", &b.DiscountAmount},
		{"final_price", &b.FinalPrice},
		{"platform_commission", &b.Commission},
		{"seller_earnings", &b.SellerEarnings},
	}
	for _, f := range fields {
		v, ok := metadataInt(md, f.key)
		if !ok {
			return Breakdown{}, false
		}
		*f.dst = v
	}
	if pct, ok := metadataInt(md, "discount_percent"); ok {
		b.DiscountPercent = int(pct)
	}
	if !b.Consistent() {
		return Breakdown{}, false
	}
	return b, true
}

func metadataInt(md map[string]any, key string) (int64, bool) {
	raw, ok := md[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func metadataString(md map[string]any, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

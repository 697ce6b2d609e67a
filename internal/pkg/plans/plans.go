// Package plans holds the subscription tiers and the limits each one grants.
package plans

import (
	"sort"
	"strings"
)

type Plan string

const (
	PlanFree  Plan = "free"
	PlanTier1 Plan = "tier1"
	PlanTier2 Plan = "tier2"
)

const (
	mb = int64(1024 * 1024)
	gb = 1024 * mb
)

// Limits describes what a plan allows. Zero means unlimited for every quota
// field (MaxTotalPacks, MaxPacksPerMonth, MaxPrice, MaxFileSize,
// EditWindowDays, RetainOnDowngrade).
type Limits struct {
	Plan               Plan   `json:"plan"`
	DisplayName        string `json:"display_name"`
	MaxTotalPacks      int    `json:"max_total_packs"`
	MaxPacksPerMonth   int    `json:"max_packs_per_month"`
	MaxPrice           int64  `json:"max_price"`
	MaxFileSize        int64  `json:"max_file_size"`
	CommissionBps      int64  `json:"commission_bps"`
	MaxDiscountPercent int    `json:"max_discount_percent"`
	EditWindowDays     int    `json:"edit_window_days"`
	CanPin             bool   `json:"can_pin"`
	CanAddLinks        bool   `json:"can_add_links"`
	RetainOnDowngrade  int    `json:"retain_on_downgrade"`
	MonthlyPrice       int64  `json:"monthly_price"`
}

// Purchasable reports whether the plan can be bought through checkout.
func (l Limits) Purchasable() bool {
	return l.MonthlyPrice > 0
}

// AllowsPackCount reports whether an owner with current packs may add one more.
func (l Limits) AllowsPackCount(current int) bool {
	return l.MaxTotalPacks == 0 || current < l.MaxTotalPacks
}

func (l Limits) AllowsMonthlyCount(current int) bool {
	return l.MaxPacksPerMonth == 0 || current < l.MaxPacksPerMonth
}

func (l Limits) AllowsPrice(price int64) bool {
	return l.MaxPrice == 0 || price <= l.MaxPrice
}

func (l Limits) AllowsFileSize(size int64) bool {
	return l.MaxFileSize == 0 || size <= l.MaxFileSize
}

func (l Limits) AllowsDiscount(percent int) bool {
	return percent >= 0 && percent <= l.MaxDiscountPercent
}

// Prices are in minor units (centavos).
var defaults = map[Plan]Limits{
	PlanFree: {
		Plan:               PlanFree,
		DisplayName:        "Gratis",
		MaxTotalPacks:      3,
		MaxPacksPerMonth:   3,
		MaxPrice:           1_500_000,
		MaxFileSize:        200 * mb,
		CommissionBps:      1500,
		MaxDiscountPercent: 20,
		EditWindowDays:     7,
		RetainOnDowngrade:  3,
	},
	PlanTier1: {
		Plan:               PlanTier1,
		DisplayName:        "Productor",
		MaxPacksPerMonth:   10,
		MaxPrice:           5_000_000,
		MaxFileSize:        1 * gb,
		CommissionBps:      1000,
		MaxDiscountPercent: 50,
		EditWindowDays:     30,
		CanPin:             true,
		CanAddLinks:        true,
		RetainOnDowngrade:  10,
		MonthlyPrice:       499_900,
	},
	PlanTier2: {
		Plan:               PlanTier2,
		DisplayName:        "Productor Pro",
		MaxFileSize:        5 * gb,
		CommissionBps:      500,
		MaxDiscountPercent: 90,
		CanPin:             true,
		CanAddLinks:        true,
		MonthlyPrice:       999_900,
	},
}

// Registry is an immutable plan table. Build it once with NewRegistry and pass
// it to whatever needs plan limits.
type Registry struct {
	limits map[Plan]Limits
}

// NewRegistry copies the built-in plan table.
func NewRegistry() *Registry {
	m := make(map[Plan]Limits, len(defaults))
	for k, v := range defaults {
		m[k] = v
	}
	return &Registry{limits: m}
}

// Limits returns the limits for a raw plan key. Unknown keys get the free tier.
func (r *Registry) Limits(raw string) Limits {
	if l, ok := r.Lookup(raw); ok {
		return l
	}
	return r.limits[PlanFree]
}

// Lookup returns the limits for a raw plan key and whether the key is known.
func (r *Registry) Lookup(raw string) (Limits, bool) {
	p, ok := Parse(raw)
	if !ok {
		return Limits{}, false
	}
	l, ok := r.limits[p]
	return l, ok
}

// All returns every plan ordered by rank.
func (r *Registry) All() []Limits {
	out := make([]Limits, 0, len(r.limits))
	for _, l := range r.limits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return Rank(out[i].Plan) < Rank(out[j].Plan) })
	return out
}

// Normalize lowercases a plan key, turns hyphens into underscores and drops a
// trailing "_monthly".
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.TrimSuffix(s, "_monthly")
}

// Parse normalizes raw and reports whether it names one of the three tiers.
func Parse(raw string) (Plan, bool) {
	switch p := Plan(Normalize(raw)); p {
	case PlanFree, PlanTier1, PlanTier2:
		return p, true
	default:
		return "", false
	}
}

// Rank orders plans free < tier1 < tier2. Unknown plans rank as free.
func Rank(p Plan) int {
	switch p {
	case PlanTier2:
		return 2
	case PlanTier1:
		return 1
	default:
		return 0
	}
}

func IsDowngrade(from, to Plan) bool {
	return Rank(to) < Rank(from)
}

func IsUpgrade(from, to Plan) bool {
	return Rank(to) > Rank(from)
}

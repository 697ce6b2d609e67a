package billing

import (
	"testing"
	"time"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/plans"
)

func TestEffectivePlan(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		row  *models.UserPlan
		want plans.Plan
	}{
		{"no row", nil, plans.PlanFree},
		{"inactive", &models.UserPlan{PlanType: "tier2", ExpiresAt: &future}, plans.PlanFree},
		{"expired", &models.UserPlan{PlanType: "tier2", IsActive: true, ExpiresAt: &past}, plans.PlanFree},
		{"current", &models.UserPlan{PlanType: "tier1", IsActive: true, ExpiresAt: &future}, plans.PlanTier1},
		{"no expiry", &models.UserPlan{PlanType: "tier2", IsActive: true}, plans.PlanTier2},
		{"legacy key", &models.UserPlan{PlanType: "TIER2_monthly", IsActive: true, ExpiresAt: &future}, plans.PlanTier2},
		{"unknown type", &models.UserPlan{PlanType: "gold", IsActive: true, ExpiresAt: &future}, plans.PlanFree},
	}

	for _, tt := range tests {
		if got := effectivePlan(tt.row, now); got != tt.want {
			t.Fatalf("%s: effectivePlan = %q, want %q", tt.name, got, tt.want)
		}
	}
}

package billing

import (
	"context"
	"time"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// PlanPeriod is how long one paid plan activation lasts.
const PlanPeriod = 30 * 24 * time.Hour

// effectivePlan maps an active plan row to a plan. No row, an expired row or
// an unknown plan type fall back to free.
func effectivePlan(row *models.UserPlan, now time.Time) plans.Plan {
	if !row.IsCurrent(now) {
		return plans.PlanFree
	}
	p, ok := plans.Parse(row.PlanType)
	if !ok {
		return plans.PlanFree
	}
	return p
}

// CurrentPlan returns the plan a user is entitled to right now.
func CurrentPlan(ctx context.Context, repo Repository, userID string, now time.Time) (plans.Plan, error) {
	row, err := repo.GetActivePlan(ctx, userID)
	if err != nil {
		return plans.PlanFree, err
	}
	return effectivePlan(row, now), nil
}

package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/app/models"
	"github.com/arsound/arsound/internal/pkg/plans"
)

// PlanResolver answers which plan a user is on.
type PlanResolver interface {
	CurrentPlan(ctx context.Context, userID string) (plans.Plan, *models.UserPlan, error)
}

// PlanController exposes the plan table and the caller's subscription.
type PlanController struct {
	registry *plans.Registry
	resolver PlanResolver
}

func NewPlanController(registry *plans.Registry, resolver PlanResolver) *PlanController {
	return &PlanController{registry: registry, resolver: resolver}
}

// HandleList returns every plan with its limits, cheapest first.
func (pc *PlanController) HandleList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": pc.registry.All()})
}

// HandleCurrent returns the caller's effective plan and its limits.
func (pc *PlanController) HandleCurrent(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	plan, row, err := pc.resolver.CurrentPlan(c.UserContext(), userID)
	if err != nil {
		return internal(err)
	}

	resp := fiber.Map{
		"plan":       plan,
		"limits":     pc.registry.Limits(string(plan)),
		"started_at": nil,
		"expires_at": nil,
	}
	if row != nil {
		resp["started_at"] = formatTimePtr(row.StartedAt)
		resp["expires_at"] = formatTimePtr(row.ExpiresAt)
	}
	return c.JSON(resp)
}

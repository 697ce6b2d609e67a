package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/arsound/arsound/internal/pkg/billing"
	"github.com/arsound/arsound/internal/pkg/usercontext"
)

// CheckoutService creates gateway preferences.
type CheckoutService interface {
	Pack(ctx context.Context, in billing.PackCheckout) (*billing.CheckoutResult, error)
	Plan(ctx context.Context, in billing.PlanCheckout) (*billing.CheckoutResult, error)
}

// CheckoutController starts pack purchases and plan subscriptions.
type CheckoutController struct {
	checkout CheckoutService
}

func NewCheckoutController(checkout CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

type packCheckoutRequest struct {
	PackID       string `json:"pack_id" validate:"required,uuid"`
	DiscountCode string `json:"discount_code" validate:"max=50"`
}

type planCheckoutRequest struct {
	Plan string `json:"plan" validate:"required,max=50"`
}

// HandlePack creates a preference for one pack, applying an optional code.
func (cc *CheckoutController) HandlePack(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errLoginRequired()
	}
	var req packCheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := cc.checkout.Pack(c.UserContext(), billing.PackCheckout{
		BuyerID:      userCtx.UserID,
		BuyerEmail:   userCtx.Email,
		PackID:       req.PackID,
		DiscountCode: req.DiscountCode,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandlePlan creates a preference for one month of a paid plan.
func (cc *CheckoutController) HandlePlan(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errLoginRequired()
	}
	var req planCheckoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	res, err := cc.checkout.Plan(c.UserContext(), billing.PlanCheckout{
		UserID:  userCtx.UserID,
		Email:   userCtx.Email,
		PlanKey: req.Plan,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
